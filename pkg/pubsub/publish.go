package pubsub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message is the outbound wire shape for a single published message. Empty
// attributes are omitted from the request entirely rather than sent as an
// empty object. The service accepts attribute-only messages, so data may be
// absent too, but at least one of the two should be set for the message to
// mean anything.
type Message struct {
	// Data is the base64-encoded payload.
	Data string `json:"data,omitempty"`

	Attributes map[string]string `json:"attributes,omitempty"`

	// OrderingKey constrains delivery order among messages sharing the same
	// key on one topic.
	OrderingKey string `json:"orderingKey,omitempty"`
}

// NewMessage wraps a raw payload as a wire message, base64-encoding it.
func NewMessage(data []byte) Message {
	return Message{Data: base64.StdEncoding.EncodeToString(data)}
}

// WithAttributes returns a copy of the message carrying the given attributes.
func (m Message) WithAttributes(attributes map[string]string) Message {
	m.Attributes = attributes
	return m
}

// WithOrderingKey returns a copy of the message carrying the given ordering key.
func (m Message) WithOrderingKey(orderingKey string) Message {
	m.OrderingKey = orderingKey
	return m
}

type publishRequest struct {
	Messages []Message `json:"messages"`
}

type publishResponse struct {
	MessageIDs []string `json:"messageIds"`
}

// Publish serializes values to JSON and publishes them to the topic as one
// batch, all sharing the same attributes and ordering key. Serialization
// runs for every value before anything is sent: one unserializable value
// fails the whole call and no network request is issued, so a batch is
// never partially published by this client.
//
// It returns the service-assigned message IDs, one per value, in order.
func Publish[M any](ctx context.Context, c *Client, topicID string, values []M, attributes map[string]string, orderingKey string) ([]string, error) {
	messages := make([]Message, 0, len(values))
	for i, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize message %d for topic %s: %w", i, topicID, err)
		}
		messages = append(messages, Message{
			Data:        base64.StdEncoding.EncodeToString(payload),
			Attributes:  attributes,
			OrderingKey: orderingKey,
		})
	}
	return c.PublishRaw(ctx, topicID, messages)
}

// PublishRaw publishes pre-encoded wire messages to the topic.
func (c *Client) PublishRaw(ctx context.Context, topicID string, messages []Message) ([]string, error) {
	url := c.topicURL(topicID)
	c.logger.Debug().Str("url", url).Int("message_count", len(messages)).Msg("Sending publish request")

	var response publishResponse
	if err := c.post(ctx, url, publishRequest{Messages: messages}, &response); err != nil {
		return nil, err
	}

	c.logger.Debug().Strs("message_ids", response.MessageIDs).Msg("Publish request was successful")
	return response.MessageIDs, nil
}

package pubsub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"
)

// ReceivedEnvelope is the wire record returned by a pull: an opaque ack
// handle wrapping the message itself. The ack ID identifies one outstanding
// delivery and expires with the ack deadline; the message ID inside is the
// stable identifier that survives redelivery.
type ReceivedEnvelope struct {
	AckID   string        `json:"ackId"`
	Message PulledPayload `json:"message"`

	// The Pub/Sub emulator does not send this field, so zero means unknown.
	DeliveryAttempt uint32 `json:"deliveryAttempt"`
}

// PulledPayload is the message half of a pulled envelope. Data is the
// base64-encoded payload; empty means the publisher sent an attribute-only
// message.
type PulledPayload struct {
	ID          string            `json:"messageId"`
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime time.Time         `json:"publishTime"`
	OrderingKey string            `json:"orderingKey"`
}

// PulledMessage is one item of a pull batch, decoded into the caller's type
// M. Msg and Err form a per-item result slot: when Err is nil, Msg holds
// the decoded message; otherwise Err records where the decode chain failed
// for this item alone. A failed item never removes or aborts its siblings,
// so callers can acknowledge the good messages and dead-letter the bad.
type PulledMessage[M any] struct {
	AckID           string
	Msg             M
	Err             error
	Attributes      map[string]string
	ID              string
	PublishTime     time.Time
	OrderingKey     string
	DeliveryAttempt uint32
}

type pullRequest struct {
	MaxMessages int32 `json:"maxMessages"`
}

type pullResponse struct {
	// Absent when the subscription has nothing to deliver.
	ReceivedMessages []ReceivedEnvelope `json:"receivedMessages"`
}

type acknowledgeRequest struct {
	AckIDs []string `json:"ackIds"`
}

// PullRaw pulls up to maxMessages envelopes without decoding their data.
// This is the variant for attribute-only consumers and for callers that
// want to run their own decode chain.
func (c *Client) PullRaw(ctx context.Context, subscriptionID string, maxMessages int32) ([]ReceivedEnvelope, error) {
	url := c.subscriptionURL(subscriptionID, "pull")
	c.logger.Debug().Str("url", url).Int32("max_messages", maxMessages).Msg("Sending pull request")

	var response pullResponse
	if err := c.post(ctx, url, pullRequest{MaxMessages: maxMessages}, &response); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("message_count", len(response.ReceivedMessages)).Msg("Pull request was successful")
	return response.ReceivedMessages, nil
}

// Pull pulls up to maxMessages messages and decodes each data payload into
// M, assuming the wire payload already matches M.
func Pull[M any](ctx context.Context, c *Client, subscriptionID string, maxMessages int32) ([]PulledMessage[M], error) {
	return PullWithTransform[M](ctx, c, subscriptionID, maxMessages, Identity{})
}

// PullWithTransform pulls up to maxMessages messages and, for each one
// independently, runs base64 decode, JSON parse, the given transform and a
// final unmarshal into M. The returned slice has one entry per pulled
// envelope in delivery order; per-item failures land in that item's Err
// slot. The call itself only fails when the HTTP exchange does.
func PullWithTransform[M any](ctx context.Context, c *Client, subscriptionID string, maxMessages int32, transform Transform) ([]PulledMessage[M], error) {
	envelopes, err := c.PullRaw(ctx, subscriptionID, maxMessages)
	if err != nil {
		return nil, err
	}
	return decodeEnvelopes[M](envelopes, transform), nil
}

// Acknowledge acknowledges pulled messages by their ack IDs. Per how the
// service works, one invalid ack ID fails the whole request with a 400 Bad
// Request and nothing is acknowledged.
func (c *Client) Acknowledge(ctx context.Context, subscriptionID string, ackIDs []string) error {
	url := c.subscriptionURL(subscriptionID, "acknowledge")
	return c.post(ctx, url, acknowledgeRequest{AckIDs: ackIDs}, nil)
}

func decodeEnvelopes[M any](envelopes []ReceivedEnvelope, transform Transform) []PulledMessage[M] {
	pulled := make([]PulledMessage[M], 0, len(envelopes))
	for i := range envelopes {
		envelope := &envelopes[i]
		msg, err := decodeEnvelope[M](envelope, transform)
		pulled = append(pulled, PulledMessage[M]{
			AckID:           envelope.AckID,
			Msg:             msg,
			Err:             err,
			Attributes:      envelope.Message.Attributes,
			ID:              envelope.Message.ID,
			PublishTime:     envelope.Message.PublishTime,
			OrderingKey:     envelope.Message.OrderingKey,
			DeliveryAttempt: envelope.DeliveryAttempt,
		})
	}
	return pulled
}

// decodeEnvelope runs the full decode chain for one envelope. It is pure
// and synchronous; once the pull response is in, nothing here blocks.
func decodeEnvelope[M any](envelope *ReceivedEnvelope, transform Transform) (M, error) {
	var msg M

	if envelope.Message.Data == "" {
		return msg, &MessageError{Stage: StageNoData, Err: ErrNoData}
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return msg, &MessageError{Stage: StageDecodeBase64, Err: err}
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return msg, &MessageError{Stage: StageParseJSON, Err: err}
	}

	value, err = transform.Apply(envelope, value)
	if err != nil {
		return msg, &MessageError{Stage: StageTransform, Err: err}
	}

	transformed, err := json.Marshal(value)
	if err != nil {
		return msg, &MessageError{Stage: StageTransform, Err: err}
	}
	if err := json.Unmarshal(transformed, &msg); err != nil {
		return msg, &MessageError{Stage: StageUnmarshal, Err: err}
	}
	return msg, nil
}

package pubsub_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-pubsub/pkg/pubsub"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakePubSub emulates the Pub/Sub REST surface over httptest: publish
// queues messages, pull hands out fresh ack IDs and redelivers anything
// unacknowledged, acknowledge is all-or-nothing like the real service.
type fakePubSub struct {
	t      *testing.T
	server *httptest.Server

	mu              sync.Mutex
	queue           []*fakeMessage
	outstanding     map[string]*fakeMessage
	publishCalls    int
	lastPublishBody []byte
	lastAuthHeader  string
}

type fakeMessage struct {
	id          string
	data        string
	attributes  map[string]string
	orderingKey string
	publishTime time.Time
	deliveries  uint32
}

func newFakePubSub(t *testing.T) *fakePubSub {
	t.Helper()
	f := &fakePubSub{
		t:           t,
		outstanding: make(map[string]*fakeMessage),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// newClient builds a client pointed at the fake, unauthenticated, the same
// way a client would be pointed at the emulator.
func (f *fakePubSub) newClient(t *testing.T) *pubsub.Client {
	t.Helper()
	cfg := &pubsub.Config{
		ProjectID: "test-project",
		BaseURL:   f.server.URL,
	}
	client, err := pubsub.NewWithTokenSource(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func (f *fakePubSub) publishCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishCalls
}

func (f *fakePubSub) lastPublishRequestBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.lastPublishBody)
}

func (f *fakePubSub) lastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuthHeader
}

// enqueue plants a message directly, bypassing publish, so tests can stage
// payloads the real publisher would never produce (bad base64, no data).
func (f *fakePubSub) enqueue(data string, attributes map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, &fakeMessage{
		id:          uuid.NewString(),
		data:        data,
		attributes:  attributes,
		publishTime: time.Now().UTC(),
	})
}

func (f *fakePubSub) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	f.lastAuthHeader = r.Header.Get("Authorization")
	f.mu.Unlock()

	action := r.URL.Path[strings.LastIndex(r.URL.Path, ":")+1:]
	switch action {
	case "publish":
		f.handlePublish(w, r)
	case "pull":
		f.handlePull(w, r)
	case "acknowledge":
		f.handleAcknowledge(w, r)
	default:
		f.writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown action "+action)
	}
}

func (f *fakePubSub) handlePublish(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Messages []struct {
			Data        string            `json:"data"`
			Attributes  map[string]string `json:"attributes"`
			OrderingKey string            `json:"orderingKey"`
		} `json:"messages"`
	}
	body := f.decode(w, r, &request)
	if body == nil {
		return
	}

	f.mu.Lock()
	f.publishCalls++
	f.lastPublishBody = body
	ids := make([]string, 0, len(request.Messages))
	for _, m := range request.Messages {
		msg := &fakeMessage{
			id:          uuid.NewString(),
			data:        m.Data,
			attributes:  m.Attributes,
			orderingKey: m.OrderingKey,
			publishTime: time.Now().UTC(),
		}
		f.queue = append(f.queue, msg)
		ids = append(ids, msg.id)
	}
	f.mu.Unlock()

	f.writeJSON(w, map[string]any{"messageIds": ids})
}

func (f *fakePubSub) handlePull(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MaxMessages int32 `json:"maxMessages"`
	}
	if f.decode(w, r, &request) == nil {
		return
	}

	f.mu.Lock()
	var received []map[string]any
	for _, msg := range f.queue {
		if int32(len(received)) >= request.MaxMessages {
			break
		}
		msg.deliveries++
		ackID := uuid.NewString()
		f.outstanding[ackID] = msg

		payload := map[string]any{
			"messageId":   msg.id,
			"attributes":  msg.attributes,
			"publishTime": msg.publishTime.Format(time.RFC3339Nano),
		}
		if msg.data != "" {
			payload["data"] = msg.data
		}
		if msg.orderingKey != "" {
			payload["orderingKey"] = msg.orderingKey
		}
		received = append(received, map[string]any{
			"ackId":           ackID,
			"message":         payload,
			"deliveryAttempt": msg.deliveries,
		})
	}
	f.mu.Unlock()

	// Like the service, omit receivedMessages entirely when there is nothing
	// to deliver.
	response := map[string]any{}
	if len(received) > 0 {
		response["receivedMessages"] = received
	}
	f.writeJSON(w, response)
}

func (f *fakePubSub) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var request struct {
		AckIDs []string `json:"ackIds"`
	}
	if f.decode(w, r, &request) == nil {
		return
	}

	f.mu.Lock()
	for _, ackID := range request.AckIDs {
		if _, ok := f.outstanding[ackID]; !ok {
			f.mu.Unlock()
			// One bad ack ID fails the whole request; nothing is acked.
			f.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
				"You have passed an invalid ack ID to the service (ack_id="+ackID+").")
			return
		}
	}
	acked := make(map[*fakeMessage]bool, len(request.AckIDs))
	for _, ackID := range request.AckIDs {
		acked[f.outstanding[ackID]] = true
		delete(f.outstanding, ackID)
	}
	remaining := f.queue[:0]
	for _, msg := range f.queue {
		if !acked[msg] {
			remaining = append(remaining, msg)
		}
	}
	f.queue = remaining
	f.mu.Unlock()

	f.writeJSON(w, map[string]any{})
}

func (f *fakePubSub) decode(w http.ResponseWriter, r *http.Request, out any) []byte {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unreadable request body")
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		f.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return nil
	}
	return body
}

func (f *fakePubSub) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		f.t.Errorf("fake pubsub: encoding response failed: %v", err)
	}
}

func (f *fakePubSub) writeError(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	f.writeJSON(w, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

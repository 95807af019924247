package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"
)

// DefaultGotchaSubject is the NATS subject promoted gotcha patterns are
// published to when the caller doesn't configure one explicitly.
const DefaultGotchaSubject = "knowledge.gotchas.record"

// natsReply is the shape the external knowledge store is expected to
// send back on a successful or failed recordGotcha request.
type natsReply struct {
	Error string `json:"error,omitempty"`
}

// NatsKnowledgeStore forwards promoted gotcha patterns to an external
// knowledge store over NATS request/reply: the reply's presence (and
// its "error" field) is how the store communicates accept/reject,
// since a bare Publish gives no delivery confirmation at all. Adapted
// from the teacher's internal/nats.Client Request/PublishJSON pair:
// its reconnect handling is kept, narrowed to the one round trip this
// gateway needs.
type NatsKnowledgeStore struct {
	conn    *nc.Conn
	subject string
}

// DialNatsKnowledgeStore connects to url and returns a store that
// requests subject with every promoted gotcha. An empty subject falls
// back to DefaultGotchaSubject.
func DialNatsKnowledgeStore(url, subject string) (*NatsKnowledgeStore, error) {
	conn, err := nc.Connect(url,
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to knowledge store at %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultGotchaSubject
	}
	return &NatsKnowledgeStore{conn: conn, subject: subject}, nil
}

// RecordGotcha sends pattern as a JSON request and waits for the
// knowledge store's reply. A reply carrying a non-empty "error" field
// is treated as a failed promotion, same as a transport-level error.
// ctx's deadline, if any, bounds how long the round trip may block.
func (s *NatsKnowledgeStore) RecordGotcha(ctx context.Context, pattern GotchaPattern) error {
	data, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("marshaling promoted gotcha: %w", err)
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	msg, err := s.conn.RequestWithContext(ctx, s.subject, data)
	if err != nil {
		return fmt.Errorf("requesting knowledge store at %s (timeout %s): %w", s.subject, timeout, err)
	}

	if len(msg.Data) == 0 {
		return nil
	}
	var reply natsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		// Not every knowledge store replies with JSON; an
		// unparseable-but-present reply is treated as acceptance.
		return nil
	}
	if reply.Error != "" {
		return fmt.Errorf("knowledge store rejected gotcha pattern: %s", reply.Error)
	}
	return nil
}

// Close closes the underlying NATS connection without draining it.
func (s *NatsKnowledgeStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

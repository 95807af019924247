// Package nats provides an embedded NATS broker for tests that exercise
// internal/promotion's NatsKnowledgeStore without requiring an external
// nats-server process.
package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// TestServer wraps an in-process *server.Server started on a free port.
type TestServer struct {
	srv *server.Server
}

// StartTestServer starts an embedded NATS server bound to 127.0.0.1 on an
// OS-assigned port and waits for it to become ready for client connections.
func StartTestServer() (*TestServer, error) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // OS-assigned
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}
	return &TestServer{srv: srv}, nil
}

// URL returns the client connection URL for the running server.
func (t *TestServer) URL() string {
	return t.srv.ClientURL()
}

// Shutdown stops the embedded server.
func (t *TestServer) Shutdown() {
	t.srv.Shutdown()
}

package dbgateway

import (
	"context"
	"strings"
	"testing"
	"time"
)

// stubTransport is a function-backed Transport for tests that need to drive
// the execution engine without a real gateway.
type stubTransport struct {
	doFunc   func(ctx context.Context, handle *ConnectionHandle, req *Request) (*QueryResult, error)
	pingFunc func(ctx context.Context, handle *ConnectionHandle) error
}

func (s *stubTransport) Do(ctx context.Context, handle *ConnectionHandle, req *Request) (*QueryResult, error) {
	if s.doFunc != nil {
		return s.doFunc(ctx, handle, req)
	}

	return &QueryResult{Data: []map[string]any{}}, nil
}

func (s *stubTransport) Ping(ctx context.Context, handle *ConnectionHandle) error {
	if s.pingFunc != nil {
		return s.pingFunc(ctx, handle)
	}

	return nil
}

// testSettings returns valid settings tuned for fast tests.
func testSettings() Settings {
	s := DefaultSettings()
	s.Endpoint = "http://localhost:54321"
	s.RestrictedCredential = strings.Repeat("r", 32)
	s.ElevatedCredential = strings.Repeat("e", 32)
	s.BackoffBase = time.Millisecond
	s.BackoffCap = 5 * time.Millisecond
	s.AcquireTimeout = 100 * time.Millisecond

	return s
}

func newTestClient(t *testing.T, settings Settings, transport Transport) *Client {
	t.Helper()

	if transport == nil {
		transport = &stubTransport{}
	}

	client, err := NewClient(context.Background(), settings, WithTransport(transport))
	if err != nil {
		t.Fatalf("failed to build test client: %v", err)
	}

	return client
}

package dbgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandle(endpoint string) *ConnectionHandle {
	return &ConnectionHandle{
		identity:   IdentityRestricted,
		endpoint:   endpoint,
		credential: "test-credential-0123456789",
	}
}

func TestRESTTransportDoGet(t *testing.T) {
	var captured *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())

		w.Header().Set("Content-Range", "0-1/42")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}))
	defer server.Close()

	transport := newRESTTransport()
	handle := testHandle(server.URL)

	result, err := transport.Do(context.Background(), handle, &Request{
		Method: http.MethodGet,
		Target: "graph_nodes",
		Params: []Param{
			{Key: "select", Value: "*"},
			{Key: "b", Value: "eq.2"},
			{Key: "a", Value: "eq.1"},
		},
	})

	require.NoError(t, err)
	assert.Len(t, result.Data, 2)

	require.NotNil(t, result.Count)
	assert.Equal(t, int64(42), *result.Count)

	require.NotNil(t, captured)
	assert.Equal(t, "/graph_nodes", captured.URL.Path)

	// Parameter order is preserved on the wire, not re-sorted.
	assert.Equal(t, "select=%2A&b=eq.2&a=eq.1", captured.URL.RawQuery)

	assert.Equal(t, handle.credential, captured.Header.Get("apikey"))
	assert.Equal(t, "Bearer "+handle.credential, captured.Header.Get("Authorization"))
	assert.NotEmpty(t, captured.Header.Get("X-Request-ID"))
}

func TestRESTTransportDoPostPayload(t *testing.T) {
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"1","title":"intro"}]`))
	}))
	defer server.Close()

	transport := newRESTTransport()

	result, err := transport.Do(context.Background(), testHandle(server.URL), &Request{
		Method:  http.MethodPost,
		Target:  "client_documents",
		Payload: map[string]any{"title": "intro"},
		Headers: map[string]string{"Prefer": "return=representation"},
	})

	require.NoError(t, err)
	assert.Len(t, result.Data, 1)
	assert.Equal(t, "intro", body["title"])
}

func TestRESTTransportDoSingleObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	transport := newRESTTransport()

	result, err := transport.Do(context.Background(), testHandle(server.URL), &Request{
		Method: http.MethodGet,
		Target: "client_documents",
	})

	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "1", result.Data[0]["id"])
}

func TestRESTTransportDoGatewayErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantCode      string
	}{
		{
			name:          "bad request is non-transient",
			status:        http.StatusBadRequest,
			body:          `{"code":"22P02","message":"invalid input syntax for type uuid"}`,
			wantTransient: false,
			wantCode:      "22P02",
		},
		{
			name:          "missing relation is non-transient",
			status:        http.StatusNotFound,
			body:          `{"code":"42P01","message":"relation \"graph_missing\" does not exist"}`,
			wantTransient: false,
			wantCode:      "42P01",
		},
		{
			name:          "permission denied is non-transient",
			status:        http.StatusForbidden,
			body:          `{"code":"42501","message":"permission denied for table documents"}`,
			wantTransient: false,
			wantCode:      "42501",
		},
		{
			name:          "service unavailable is transient",
			status:        http.StatusServiceUnavailable,
			body:          `{"message":"connection pool saturated"}`,
			wantTransient: true,
		},
		{
			name:          "rate limit is transient",
			status:        http.StatusTooManyRequests,
			body:          ``,
			wantTransient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			transport := newRESTTransport()

			_, err := transport.Do(context.Background(), testHandle(server.URL), &Request{
				Method: http.MethodGet,
				Target: "client_documents",
			})

			var remote *RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.status, remote.StatusCode)
			assert.Equal(t, tt.wantTransient, remote.Transient)
			assert.Equal(t, tt.wantCode, remote.Code)
		})
	}
}

func TestRESTTransportDoDeadlinePropagates(t *testing.T) {
	block := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	transport := newRESTTransport()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := transport.Do(ctx, testHandle(server.URL), &Request{
		Method: http.MethodGet,
		Target: "client_documents",
	})

	// The context error surfaces unchanged so the execution engine can map it.
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRESTTransportPing(t *testing.T) {
	t.Run("accepted credential", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, r.Header.Get("apikey"))
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		assert.NoError(t, newRESTTransport().Ping(context.Background(), testHandle(server.URL)))
	})

	t.Run("rejected credential", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		err := newRESTTransport().Ping(context.Background(), testHandle(server.URL))

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "restricted")
	})
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"0-9/100", 100, true},
		{"*/0", 0, true},
		{"0-9/*", 0, false},
		{"", 0, false},
		{"garbage", 0, false},
	}

	for _, tt := range tests {
		total, ok := parseContentRangeTotal(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, total, tt.header)
	}
}

func TestEncodeParams(t *testing.T) {
	assert.Equal(t, "", encodeParams(nil))

	qs := encodeParams([]Param{
		{Key: "select", Value: "id,title"},
		{Key: "title", Value: "ilike.%go%"},
	})

	assert.Equal(t, "select=id%2Ctitle&title=ilike.%25go%25", qs)
}

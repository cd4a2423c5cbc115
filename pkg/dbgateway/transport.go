package dbgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Identity tier names.
const (
	IdentityRestricted = "restricted"
	IdentityElevated   = "elevated"
)

// ConnectionHandle is one long-lived identity against the gateway. It is
// stateless beyond holding the endpoint and credential, and is never mutated
// after creation.
type ConnectionHandle struct {
	identity   string
	endpoint   string
	credential string
}

// Identity returns the handle's identity tier (restricted or elevated).
func (h *ConnectionHandle) Identity() string {
	return h.identity
}

// Param is one ordered key/value query parameter. Filters must reach the
// gateway in append order, which url.Values cannot guarantee.
type Param struct {
	Key   string
	Value string
}

// Request is a compiled gateway call.
type Request struct {
	Method  string
	Target  string // flat table identifier
	Params  []Param
	Headers map[string]string
	Payload any // JSON-encoded when non-nil
}

// QueryResult is the rowset returned by the gateway. Count is populated only
// when the request asked for one.
type QueryResult struct {
	Data  []map[string]any
	Count *int64
}

// Transport performs a single gateway call. Implementations map gateway
// failures onto RemoteError with the Transient flag set appropriately, and
// propagate context cancellation and deadline errors unchanged.
//
//go:generate mockgen --destination=mocks/transport_mock.go --package=mocks . Transport
type Transport interface {
	Do(ctx context.Context, handle *ConnectionHandle, req *Request) (*QueryResult, error)
	Ping(ctx context.Context, handle *ConnectionHandle) error
}

// restTransport talks to the gateway's REST surface.
type restTransport struct {
	httpClient *http.Client
}

func newRESTTransport() *restTransport {
	return &restTransport{
		// Per-call deadlines come from the execution engine's context, so the
		// client itself carries no overall timeout.
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// gatewayError is the gateway's structured error payload.
type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (t *restTransport) Do(ctx context.Context, handle *ConnectionHandle, req *Request) (*QueryResult, error) {
	target := fmt.Sprintf("%s/%s", handle.endpoint, req.Target)
	if qs := encodeParams(req.Params); qs != "" {
		target += "?" + qs
	}

	var body io.Reader

	if req.Payload != nil {
		encoded, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, &RemoteError{
				Message:   fmt.Sprintf("failed to encode payload: %v", err),
				Transient: false,
				Err:       err,
			}
		}

		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gateway request")
	}

	httpReq.Header.Set(constant.HeaderAPIKey, handle.credential)
	httpReq.Header.Set("Authorization", "Bearer "+handle.credential)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(constant.HeaderRequestID, uuid.New().String())

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		// Deadline and cancellation surface unchanged so the execution
		// engine can tell a timeout from a network fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, &RemoteError{
			Message:   err.Error(),
			Transient: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, &RemoteError{Message: err.Error(), Transient: true, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, decodeGatewayError(resp.StatusCode, raw)
	}

	return decodeResult(resp, raw)
}

// Ping verifies that the handle's credential is accepted by the gateway.
func (t *restTransport) Ping(ctx context.Context, handle *ConnectionHandle) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.endpoint+"/", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create ping request")
	}

	httpReq.Header.Set(constant.HeaderAPIKey, handle.credential)
	httpReq.Header.Set("Authorization", "Bearer "+handle.credential)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "gateway unreachable for %s identity", handle.identity)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway rejected %s identity with status %d", handle.identity, resp.StatusCode)
	}

	return nil
}

func decodeGatewayError(status int, raw []byte) *RemoteError {
	gwErr := gatewayError{}
	_ = json.Unmarshal(raw, &gwErr)

	message := gwErr.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	if message == "" {
		message = http.StatusText(status)
	}

	return &RemoteError{
		StatusCode: status,
		Code:       gwErr.Code,
		Message:    message,
		Details:    gwErr.Details,
		Transient:  classifyRemote(status, gwErr.Code, message),
	}
}

func decodeResult(resp *http.Response, raw []byte) (*QueryResult, error) {
	result := &QueryResult{Data: []map[string]any{}}

	if count, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
		result.Count = &count
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}

	trimmed := bytes.TrimSpace(raw)

	// Single-row responses come back as one object instead of an array.
	if trimmed[0] == '{' {
		row := map[string]any{}
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, &RemoteError{Message: fmt.Sprintf("malformed gateway response: %v", err), Transient: false, Err: err}
		}

		result.Data = append(result.Data, row)

		return result, nil
	}

	if err := json.Unmarshal(trimmed, &result.Data); err != nil {
		return nil, &RemoteError{Message: fmt.Sprintf("malformed gateway response: %v", err), Transient: false, Err: err}
	}

	return result, nil
}

// parseContentRangeTotal extracts the total from a "start-end/total" header.
func parseContentRangeTotal(header string) (int64, bool) {
	_, totalPart, found := strings.Cut(header, "/")
	if !found || totalPart == "*" {
		return 0, false
	}

	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, false
	}

	return total, true
}

// encodeParams renders query parameters preserving append order.
func encodeParams(params []Param) string {
	if len(params) == 0 {
		return ""
	}

	var sb strings.Builder

	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}

		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}

	return sb.String()
}

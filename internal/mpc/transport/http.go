package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
)

// API paths served by MPC nodes.
const (
	pathExecute   = "/api/v1/execute"
	pathResult    = "/api/v1/result/"
	pathHandshake = "/api/v1/healthz"
)

// HTTPTransport talks JSON over HTTP to MPC nodes. One instance is shared
// across fanout and collection; it holds no session state.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport backed by the given client, or a
// default client if nil. Per-call timeouts come from call contexts, not the
// http.Client.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// Handshake implements NodeTransport.
func (t *HTTPTransport) Handshake(ctx context.Context, node string, timeout time.Duration) (*HandshakeResponse, error) {
	var resp HandshakeResponse
	if err := t.get(ctx, node, "handshake", nodeURL(node, pathHandshake), timeout, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, &Error{Kind: ErrKindProtocol, Node: node, Op: "handshake", Message: fmt.Sprintf("node reported status %q", resp.Status)}
	}
	return &resp, nil
}

// Send implements NodeTransport.
func (t *HTTPTransport) Send(ctx context.Context, node string, req *DispatchRequest, timeout time.Duration) (*DispatchAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dispatch request")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL(node, pathExecute), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build dispatch request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classify(node, "send", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		return nil, &Error{Kind: ErrKindProtocol, Node: node, Op: "send", Message: fmt.Sprintf("unexpected status %d", httpResp.StatusCode)}
	}

	var ack DispatchAck
	if err := decodeBody(httpResp.Body, &ack); err != nil {
		return nil, &Error{Kind: ErrKindProtocol, Node: node, Op: "send", Message: "malformed ack", Err: err}
	}
	if !ack.Accepted {
		return nil, &Error{Kind: ErrKindProtocol, Node: node, Op: "send", Message: fmt.Sprintf("node rejected dispatch: %s", ack.Message)}
	}

	log.Debug().Str("node", node).Str("execution_id", req.ExecutionID).Msg("dispatch acknowledged")
	return &ack, nil
}

// Poll implements NodeTransport.
func (t *HTTPTransport) Poll(ctx context.Context, node string, executionID string, timeout time.Duration) (*sharing.ResultShare, bool, error) {
	var resp PollResponse
	if err := t.get(ctx, node, "poll", nodeURL(node, pathResult+executionID), timeout, &resp); err != nil {
		return nil, false, err
	}

	switch resp.Status {
	case ResultStatusPending:
		return nil, false, nil
	case ResultStatusComplete:
		if resp.Share == nil {
			return nil, false, &Error{Kind: ErrKindProtocol, Node: node, Op: "poll", Message: "complete response without share"}
		}
		if resp.ExecutionID != executionID {
			return nil, false, &Error{Kind: ErrKindProtocol, Node: node, Op: "poll", Message: fmt.Sprintf("share for foreign execution %q", resp.ExecutionID)}
		}
		return &sharing.ResultShare{
			Share:       *resp.Share,
			NodeURL:     node,
			ExecutionID: executionID,
		}, true, nil
	default:
		return nil, false, &Error{Kind: ErrKindProtocol, Node: node, Op: "poll", Message: fmt.Sprintf("unknown result status %q", resp.Status)}
	}
}

func (t *HTTPTransport) get(ctx context.Context, node, op, url string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", op)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return classify(node, op, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &Error{Kind: ErrKindProtocol, Node: node, Op: op, Message: fmt.Sprintf("unexpected status %d", httpResp.StatusCode)}
	}

	if err := decodeBody(httpResp.Body, out); err != nil {
		return &Error{Kind: ErrKindProtocol, Node: node, Op: op, Message: "malformed response", Err: err}
	}
	return nil
}

func decodeBody(r io.Reader, out interface{}) error {
	dec := json.NewDecoder(r)
	return dec.Decode(out)
}

func nodeURL(node, path string) string {
	return strings.TrimRight(node, "/") + path
}

// classify maps low-level request failures onto the transport error kinds.
func classify(node, op string, err error) *Error {
	kind := ErrKindRefused
	if netErr, ok := errors.Cause(err).(net.Error); ok && netErr.Timeout() {
		kind = ErrKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrKindTimeout
	}
	// url.Error wraps the underlying cause; unwrap one more level.
	if uerr := errors.Unwrap(err); uerr != nil {
		if netErr, ok := uerr.(net.Error); ok && netErr.Timeout() {
			kind = ErrKindTimeout
		}
		if errors.Is(uerr, context.DeadlineExceeded) {
			kind = ErrKindTimeout
		}
	}
	return &Error{Kind: kind, Node: node, Op: op, Message: "request failed", Err: err}
}

// Package coordinator implements the optional metadata side-channel to the
// MPC orchestration coordinator. The coordinator never takes part in node
// discovery; the exchange only carries advisory application context.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const pathMetadata = "/api/v1/metadata"

// ExchangeRequest carries the client's application metadata out.
type ExchangeRequest struct {
	ClientID  string                 `json:"client_id"`
	ProgramID string                 `json:"program_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Context is the free-form application context a coordinator hands back.
type Context map[string]interface{}

type exchangeResponse struct {
	Context Context `json:"context"`
}

// MetadataChannel exchanges non-secret application context with a
// coordinator.
type MetadataChannel interface {
	Exchange(ctx context.Context, req *ExchangeRequest) (Context, error)
}

// HTTPChannel is the JSON-over-HTTP metadata channel.
type HTTPChannel struct {
	coordinatorURL string
	timeout        time.Duration
	client         *http.Client
}

// NewHTTPChannel creates a metadata channel for the given coordinator
// endpoint.
func NewHTTPChannel(coordinatorURL string, timeout time.Duration, client *http.Client) *HTTPChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPChannel{
		coordinatorURL: coordinatorURL,
		timeout:        timeout,
		client:         client,
	}
}

// Exchange implements MetadataChannel. Failures here are non-fatal to the
// session by design; the caller records them instead of aborting.
func (c *HTTPChannel) Exchange(ctx context.Context, req *ExchangeRequest) (Context, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(c.coordinatorURL, "/") + pathMetadata
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build metadata request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "metadata exchange failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("coordinator returned status %d", httpResp.StatusCode)
	}

	var resp exchangeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "malformed coordinator response")
	}

	log.Debug().Str("coordinator", c.coordinatorURL).Str("program_id", req.ProgramID).Msg("metadata exchange completed")
	return resp.Context, nil
}

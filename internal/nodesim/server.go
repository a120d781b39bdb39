// Package nodesim hosts a simulated MPC node for development and testing.
// The simulated program is affine: each node adds its incoming share scalars
// and the public integer inputs. Shamir shares are linear, so the sum of a
// node's shares is a genuine share of the sum of the inputs, and a client
// reconstructing against a set of nodesims obtains the true result.
//
// The same server doubles as a coordinator by exposing the metadata
// exchange endpoint.
package nodesim

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kyber/v3/group/edwards25519"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/transport"
)

// Option configures a simulated node.
type Option func(*Server)

// WithResultDelay makes results become available only after d has passed
// since dispatch.
func WithResultDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithNeverReady makes the node accept dispatches but never report a
// result, for exercising collection deadlines.
func WithNeverReady() Option {
	return func(s *Server) { s.neverReady = true }
}

// Server is one simulated MPC node.
type Server struct {
	programID  string
	delay      time.Duration
	neverReady bool

	suite *edwards25519.SuiteEd25519

	mu         sync.Mutex
	executions map[string]*pendingResult

	echo *echo.Echo
}

type pendingResult struct {
	share   sharing.Share
	readyAt time.Time
}

// NewServer creates a simulated node serving the given program id.
func NewServer(programID string, opts ...Option) *Server {
	s := &Server{
		programID:  programID,
		suite:      edwards25519.NewBlakeSHA256Ed25519(),
		executions: make(map[string]*pendingResult),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/api/v1/execute", s.handleExecute)
	e.GET("/api/v1/result/:executionID", s.handleResult)
	e.GET("/api/v1/healthz", s.handleHealthz)
	e.POST("/api/v1/metadata", s.handleMetadata)

	s.echo = e
	return s
}

// Handler exposes the node as an http.Handler, so tests can mount it in
// httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves the node on addr until the process ends.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Str("program_id", s.programID).Msg("starting simulated MPC node")
	return s.echo.Start(addr)
}

func (s *Server) handleExecute(c echo.Context) error {
	var req transport.DispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, transport.DispatchAck{Accepted: false, Message: "malformed request"})
	}
	if req.ExecutionID == "" {
		return c.JSON(http.StatusBadRequest, transport.DispatchAck{Accepted: false, Message: "execution_id is required"})
	}
	if req.ProgramID != s.programID {
		return c.JSON(http.StatusBadRequest, transport.DispatchAck{
			ExecutionID: req.ExecutionID,
			Accepted:    false,
			Message:     "node is not running program " + req.ProgramID,
		})
	}

	acc := s.suite.Scalar().Zero()
	shareType := sharing.ShareTypeShamirEd25519
	for name, sh := range req.SecretShares {
		v := s.suite.Scalar()
		if err := v.UnmarshalBinary(sh.Data); err != nil {
			return c.JSON(http.StatusBadRequest, transport.DispatchAck{
				ExecutionID: req.ExecutionID,
				Accepted:    false,
				Message:     "malformed share for input " + name,
			})
		}
		acc.Add(acc, v)
		shareType = sh.ShareType
	}
	for _, value := range req.PublicInputs {
		if n, ok := asInt64(value); ok {
			acc.Add(acc, s.suite.Scalar().SetInt64(n))
		}
	}

	data, err := acc.MarshalBinary()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, transport.DispatchAck{
			ExecutionID: req.ExecutionID,
			Accepted:    false,
			Message:     "failed to compute result share",
		})
	}

	s.mu.Lock()
	s.executions[req.ExecutionID] = &pendingResult{
		share: sharing.Share{
			ShareType: shareType,
			Index:     req.PartyIndex,
			Data:      data,
		},
		readyAt: time.Now().Add(s.delay),
	}
	s.mu.Unlock()

	log.Debug().Str("execution_id", req.ExecutionID).Str("client_id", req.ClientID).Int("party_index", req.PartyIndex).Msg("nodesim accepted execution")
	return c.JSON(http.StatusAccepted, transport.DispatchAck{ExecutionID: req.ExecutionID, Accepted: true})
}

func (s *Server) handleResult(c echo.Context) error {
	executionID := c.Param("executionID")

	s.mu.Lock()
	pending, ok := s.executions[executionID]
	s.mu.Unlock()

	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown execution")
	}

	if s.neverReady || time.Now().Before(pending.readyAt) {
		return c.JSON(http.StatusOK, transport.PollResponse{
			ExecutionID: executionID,
			Status:      transport.ResultStatusPending,
		})
	}

	share := pending.share
	return c.JSON(http.StatusOK, transport.PollResponse{
		ExecutionID: executionID,
		Status:      transport.ResultStatusComplete,
		Share:       &share,
	})
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, transport.HandshakeResponse{Status: "ok", ProgramID: s.programID})
}

func (s *Server) handleMetadata(c echo.Context) error {
	var req struct {
		ClientID  string                 `json:"client_id"`
		ProgramID string                 `json:"program_id"`
		Metadata  map[string]interface{} `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"context": map[string]interface{}{
			"coordinator": "nodesim",
			"program_id":  req.ProgramID,
			"received_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// asInt64 coerces JSON numbers and bools onto the program's integer domain.
func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case int:
		return int64(v), true
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

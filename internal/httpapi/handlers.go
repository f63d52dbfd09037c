// Package httpapi is the JSON HTTP surface of the gate.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/middleware"
)

// CodeInvalidRequest is returned for bodies that are not valid JSON.
const CodeInvalidRequest = 4000

const maxBodyBytes = 16 << 10

// Gate is the part of *authgate.Gate the handlers use.
type Gate interface {
	LoginWithResult(ctx context.Context, username, password string) (*authgate.LoginResult, error)
	LoginBlockedFor(ctx context.Context, username string) (time.Duration, error)
	Introspect(ctx context.Context, token string) (authgate.Principal, error)
	IntrospectToken(ctx context.Context, token string) authgate.IntrospectResult
	Throttle(ctx context.Context, op authgate.Operation, identity string) error
	Health(ctx context.Context) authgate.HealthStatus
}

// Handlers serves the /auth endpoints.
type Handlers struct {
	gate   Gate
	logger *zap.Logger
}

// NewHandlers returns handlers over gate. A nil logger discards.
func NewHandlers(gate Gate, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{gate: gate, logger: logger}
}

// Envelope wraps successful responses.
type Envelope struct {
	Code   int `json:"code"`
	Result any `json:"result"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresAt int64  `json:"expiresAt"`
}

type introspectRequest struct {
	Token string `json:"token"`
}

// Login handles POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := authgate.WithClientIP(r.Context(), middleware.RemoteHost(r))
	res, err := h.gate.LoginWithResult(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, authgate.ErrTooManyAttempts) {
			h.setRetryAfter(ctx, w, req.Username)
		}
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, Envelope{
		Code: authgate.KindNone.Code(),
		Result: loginResponse{
			Token:     res.AccessToken,
			TokenType: res.TokenType,
			ExpiresAt: res.ExpiresAt.Unix(),
		},
	})
}

// Introspect handles POST /auth/introspect. An invalid token is a 200 with
// valid=false; the request budget is keyed by the submitted token.
func (h *Handlers) Introspect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := authgate.WithClientIP(r.Context(), middleware.RemoteHost(r))
	if err := h.gate.Throttle(ctx, authgate.OpIntrospect, req.Token); err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, Envelope{
		Code:   authgate.KindNone.Code(),
		Result: h.gate.IntrospectToken(ctx, req.Token),
	})
}

// Me handles GET /auth/me behind Guard.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authgate.ErrInvalidToken)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, Envelope{Code: authgate.KindNone.Code(), Result: p})
}

type healthResponse struct {
	Status         string  `json:"status"`
	RedisAvailable bool    `json:"redis_available"`
	RedisLatencyMS float64 `json:"redis_latency_ms"`
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := h.gate.Health(r.Context())
	resp := healthResponse{
		Status:         "ok",
		RedisAvailable: st.RedisAvailable,
		RedisLatencyMS: float64(st.RedisLatency.Microseconds()) / 1000,
	}
	status := http.StatusOK
	if !st.RedisAvailable {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, resp)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{
			Code:    CodeInvalidRequest,
			Message: "Invalid request body",
		})
		return false
	}
	return true
}

func (h *Handlers) setRetryAfter(ctx context.Context, w http.ResponseWriter, username string) {
	d, err := h.gate.LoginBlockedFor(ctx, username)
	if err != nil {
		h.logger.Debug("retry-after lookup failed", zap.Error(err))
		return
	}
	if d <= 0 {
		return
	}
	w.Header().Set("Retry-After", formatSeconds(d))
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}

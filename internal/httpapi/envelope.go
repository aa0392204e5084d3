package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legacycore/internal/core"
	"legacycore/pkg/domain"
)

// Every response body is the same envelope: {"success": true, "data": ...}
// on success, {"success": false, "error": {...}} on failure.
type envelope struct {
	Success   bool       `json:"success"`
	RequestID string     `json:"request_id,omitempty"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Violations []violationBody `json:"violations,omitempty"`
}

type violationBody struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

type ctxKey int

const requestIDKey ctxKey = 0

// RequestIDFrom returns the request ID assigned by the middleware, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, envelope{
		Success:   true,
		RequestID: RequestIDFrom(r.Context()),
		Data:      data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, violations []domain.Violation) {
	body := &errorBody{Code: code, Message: message}
	for _, v := range violations {
		body.Violations = append(body.Violations, violationBody{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	writeEnvelope(w, status, envelope{
		Success:   false,
		RequestID: RequestIDFrom(r.Context()),
		Error:     body,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// writeServiceError maps service errors onto HTTP statuses. Rule violations
// are 400, except illegal lifecycle transitions which are 409. Missing
// entities are 404. Everything else is a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var nf core.ErrNotFound
	if errors.As(err, &nf) {
		writeError(w, r, http.StatusNotFound, "not_found", nf.Error(), nil)
		return
	}
	if errors.Is(err, core.ErrCoolingOff) {
		writeError(w, r, http.StatusConflict, "cooling_off", err.Error(), nil)
		return
	}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		status := http.StatusBadRequest
		code := "rule_violation"
		for _, v := range rv.Result.Violations {
			if v.Severity == domain.SeverityBlock && v.Rule == "activation_transition" {
				status = http.StatusConflict
				code = "illegal_transition"
				break
			}
		}
		writeError(w, r, status, code, "transaction blocked by rules", rv.Result.Violations)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal", err.Error(), nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

// requestIDMiddleware assigns a UUID to each request and echoes it in the
// X-Request-ID header so clients can correlate logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Infow("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFrom(r.Context()),
			)
		})
	}
}

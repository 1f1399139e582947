// Package httpapi exposes the tool catalog and tool calls over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/usecase"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

var errInvalidBody = errors.New("request body must be a JSON object")

type Handler struct {
	tools  *usecase.ToolService
	calls  *usecase.ToolCallService
	auth   *usecase.AuthService
	logger *log.Logger
}

func NewHandler(tools *usecase.ToolService, calls *usecase.ToolCallService, auth *usecase.AuthService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{tools: tools, calls: calls, auth: auth, logger: logger}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/tools", h.listTools)
		pr.Get("/v1/tools/{operation}", h.getTool)
		pr.Post("/v1/tools/{operation}:validate", h.validateTool)
		pr.Post("/v1/tools/{operation}:call", h.callTool)
		pr.Get("/v1/tool-calls", h.listToolCalls)
	})

	return r
}

type toolResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type requestResponse struct {
	Method    string         `json:"method"`
	Path      string         `json:"path"`
	Transport string         `json:"transport"`
	Params    map[string]any `json:"params"`
}

type toolCallResponse struct {
	ID             string             `json:"id"`
	Operation      string             `json:"operation"`
	Actor          string             `json:"actor"`
	RequestID      string             `json:"request_id,omitempty"`
	Outcome        string             `json:"outcome"`
	Violations     []domain.Violation `json:"violations,omitempty"`
	Params         json.RawMessage    `json:"params,omitempty"`
	UpstreamStatus int                `json:"upstream_status,omitempty"`
	Error          string             `json:"error,omitempty"`
	DurationMS     int64              `json:"duration_ms"`
	CreatedAt      string             `json:"created_at"`
}

func (h *Handler) listTools(w http.ResponseWriter, _ *http.Request) {
	ops := h.tools.List()
	result := make([]toolResponse, 0, len(ops))
	for _, op := range ops {
		result = append(result, toToolResponse(op))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"tools": result})
}

func (h *Handler) getTool(w http.ResponseWriter, r *http.Request) {
	op, err := h.tools.Describe(chi.URLParam(r, "operation"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toToolResponse(op))
}

func (h *Handler) validateTool(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeArguments(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.tools.Validate(chi.URLParam(r, "operation"), raw)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"valid": true, "request": toRequestResponse(req)})
}

func (h *Handler) callTool(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeArguments(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.tools.Call(r.Context(), chi.URLParam(r, "operation"), raw, usecase.CallMeta{
		TenantID:  tenantIDFromContext(r.Context()),
		Actor:     actorFromContext(r.Context()),
		RequestID: requestIDFromContext(r.Context()),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"call_id":  res.CallID,
		"request":  toRequestResponse(res.Request),
		"response": res.Response,
	})
}

func (h *Handler) listToolCalls(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	filter := domain.ToolCallFilter{
		TenantID:  tenantIDFromContext(r.Context()),
		Operation: r.URL.Query().Get("operation"),
		Outcome:   domain.CallOutcome(r.URL.Query().Get("outcome")),
		Limit:     limit,
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
			return
		}
		filter.After = after
	}

	calls, err := h.calls.List(r.Context(), filter)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	result := make([]toolCallResponse, 0, len(calls))
	for _, c := range calls {
		result = append(result, toToolCallResponse(c))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, openapiSpec(h.tools.List()))
}

// decodeArguments reads the tool arguments object. Numbers are kept as
// json.Number so integer-valued input is not rounded through float64. An
// empty body is an empty argument set.
func decodeArguments(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		return nil, errInvalidBody
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, errInvalidBody
	}
	return raw, nil
}

func toToolResponse(op usecase.CompiledOperation) toolResponse {
	return toolResponse{
		Name:        op.Operation.Name,
		Description: op.Operation.Description,
		Method:      op.Operation.Method,
		Path:        op.Operation.Path,
		InputSchema: op.InputSchema,
	}
}

func toRequestResponse(req domain.Request) requestResponse {
	return requestResponse{
		Method:    req.Method,
		Path:      req.Path,
		Transport: string(req.Transport),
		Params:    req.Params,
	}
}

func toToolCallResponse(c domain.ToolCall) toolCallResponse {
	return toolCallResponse{
		ID:             c.ID,
		Operation:      c.Operation,
		Actor:          c.Actor,
		RequestID:      c.RequestID,
		Outcome:        string(c.Outcome),
		Violations:     c.Violations,
		Params:         c.ParamsJSON,
		UpstreamStatus: c.UpstreamStatus,
		Error:          c.Error,
		DurationMS:     c.Duration.Milliseconds(),
		CreatedAt:      c.CreatedAt.UTC().Format(timeFormat),
	}
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("encode json response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.logger.Error("write response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ErrValidation
	var upstream interface{ StatusCode() int }
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      verr.Error(),
			"operation":  verr.Operation,
			"violations": verr.Violations,
		})
	case errors.Is(err, domain.ErrUnknownOperation), errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidFilter):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrUpstream):
		body := map[string]any{"error": err.Error()}
		if errors.As(err, &upstream) {
			body["upstream_status"] = upstream.StatusCode()
		}
		h.writeJSON(w, http.StatusBadGateway, body)
	default:
		h.logger.Error("unhandled error", "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

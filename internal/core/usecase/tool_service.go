package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/ports"
)

// ErrUpstream marks failures talking to the property-management API, as
// opposed to problems with the caller's input.
var ErrUpstream = errors.New("upstream call failed")

// OperationCatalog is the read-only set of declared operations.
type OperationCatalog interface {
	Get(name string) (CompiledOperation, error)
	List() []CompiledOperation
}

// CallMeta identifies who is making a tool call.
type CallMeta struct {
	TenantID  string
	Actor     string
	RequestID string
}

type CallResult struct {
	CallID   string
	Request  domain.Request
	Response json.RawMessage
}

type ToolService struct {
	catalog  OperationCatalog
	upstream ports.UpstreamClient
	calls    ports.ToolCallRepository
	logger   *log.Logger
	now      func() time.Time
}

type ToolServiceOption func(*ToolService)

func WithLogger(logger *log.Logger) ToolServiceOption {
	return func(s *ToolService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) ToolServiceOption {
	return func(s *ToolService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewToolService(catalog OperationCatalog, upstream ports.UpstreamClient, calls ports.ToolCallRepository, opts ...ToolServiceOption) *ToolService {
	s := &ToolService{
		catalog:  catalog,
		upstream: upstream,
		calls:    calls,
		logger:   log.New(io.Discard),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ToolService) List() []CompiledOperation {
	return s.catalog.List()
}

func (s *ToolService) Describe(name string) (CompiledOperation, error) {
	return s.catalog.Get(name)
}

// Validate normalizes raw for the named operation without calling upstream.
func (s *ToolService) Validate(name string, raw map[string]any) (domain.Request, error) {
	op, err := s.catalog.Get(name)
	if err != nil {
		return domain.Request{}, err
	}
	if unknown := UnknownFields(raw, op.Operation); len(unknown) > 0 {
		s.logger.Debug("ignoring undeclared fields", "operation", name, "fields", unknown)
	}
	return op.Normalize(raw)
}

// Call validates raw, sends the request upstream and records the outcome.
// Rejected input never reaches the upstream client.
func (s *ToolService) Call(ctx context.Context, name string, raw map[string]any, meta CallMeta) (CallResult, error) {
	started := s.now()
	call := domain.ToolCall{
		ID:        uuid.NewString(),
		TenantID:  meta.TenantID,
		Operation: name,
		Actor:     meta.Actor,
		RequestID: meta.RequestID,
		CreatedAt: started.UTC(),
	}

	req, err := s.Validate(name, raw)
	if err != nil {
		var verr *domain.ErrValidation
		if errors.As(err, &verr) {
			call.Outcome = domain.OutcomeRejected
			call.Violations = verr.Violations
			call.Error = verr.Error()
			s.record(ctx, &call, started)
			s.logger.Info("tool call rejected", "operation", name, "violations", len(verr.Violations), "request_id", meta.RequestID)
		}
		return CallResult{}, err
	}

	params, err := json.Marshal(req.Params)
	if err != nil {
		s.logger.Error("encode tool call params", "operation", name, "err", err)
	} else {
		call.ParamsJSON = params
	}
	resp, err := s.upstream.Do(ctx, req)
	if err != nil {
		call.Outcome = domain.OutcomeUpstreamError
		call.Error = err.Error()
		var status interface{ StatusCode() int }
		if errors.As(err, &status) {
			call.UpstreamStatus = status.StatusCode()
		}
		s.record(ctx, &call, started)
		s.logger.Warn("upstream call failed", "operation", name, "status", call.UpstreamStatus, "err", err)
		return CallResult{}, fmt.Errorf("%w: %s: %w", ErrUpstream, name, err)
	}

	call.Outcome = domain.OutcomeOK
	call.UpstreamStatus = resp.Status
	s.record(ctx, &call, started)
	s.logger.Info("tool call", "operation", name, "request_id", meta.RequestID, "status", resp.Status, "duration", call.Duration)
	return CallResult{CallID: call.ID, Request: req, Response: resp.Body}, nil
}

func (s *ToolService) record(ctx context.Context, call *domain.ToolCall, started time.Time) {
	call.Duration = s.now().Sub(started)
	if s.calls == nil {
		return
	}
	if err := s.calls.Record(ctx, *call); err != nil {
		s.logger.Error("record tool call", "operation", call.Operation, "err", err)
	}
}

// ToolCallService lists recorded tool calls.
type ToolCallService struct {
	repo ports.ToolCallRepository
}

func NewToolCallService(repo ports.ToolCallRepository) *ToolCallService {
	return &ToolCallService{repo: repo}
}

func (s *ToolCallService) List(ctx context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", domain.ErrInvalidFilter)
	}
	switch filter.Outcome {
	case "", domain.OutcomeOK, domain.OutcomeRejected, domain.OutcomeUpstreamError:
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidFilter, filter.Outcome)
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}

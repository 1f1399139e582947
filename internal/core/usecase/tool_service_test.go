package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

type mapCatalog map[string]CompiledOperation

func (m mapCatalog) Get(name string) (CompiledOperation, error) {
	op, ok := m[name]
	if !ok {
		return CompiledOperation{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, name)
	}
	return op, nil
}

func (m mapCatalog) List() []CompiledOperation {
	out := make([]CompiledOperation, 0, len(m))
	for _, op := range m {
		out = append(out, op)
	}
	return out
}

type stubUpstream struct {
	doFn  func(ctx context.Context, req domain.Request) (domain.Response, error)
	calls int
}

func (s *stubUpstream) Do(ctx context.Context, req domain.Request) (domain.Response, error) {
	s.calls++
	if s.doFn != nil {
		return s.doFn(ctx, req)
	}
	return domain.Response{Status: 200, Body: json.RawMessage(`{}`)}, nil
}

type stubToolCallRepo struct {
	recorded []domain.ToolCall
	recordFn func(ctx context.Context, call domain.ToolCall) error
	listFn   func(ctx context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error)
}

func (s *stubToolCallRepo) Record(ctx context.Context, call domain.ToolCall) error {
	s.recorded = append(s.recorded, call)
	if s.recordFn != nil {
		return s.recordFn(ctx, call)
	}
	return nil
}

func (s *stubToolCallRepo) List(ctx context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("upstream returned %d", e.status) }
func (e statusErr) StatusCode() int { return e.status }

func newTestToolService(t *testing.T, upstream *stubUpstream, repo *stubToolCallRepo) *ToolService {
	t.Helper()
	compiled, err := CompileOperation(unitsOp())
	if err != nil {
		t.Fatalf("CompileOperation: %v", err)
	}
	tick := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(25 * time.Millisecond)
		return tick
	}
	return NewToolService(mapCatalog{"search_units": compiled}, upstream, repo, WithClock(clock))
}

func TestToolServiceCallSendsNormalizedRequest(t *testing.T) {
	var sent domain.Request
	upstream := &stubUpstream{doFn: func(_ context.Context, req domain.Request) (domain.Response, error) {
		sent = req
		return domain.Response{Status: 200, Body: json.RawMessage(`{"_embedded":{"units":[]}}`)}, nil
	}}
	repo := &stubToolCallRepo{}
	svc := newTestToolService(t, upstream, repo)

	res, err := svc.Call(context.Background(), "search_units", map[string]any{"page": "2", "is_active": "on"}, CallMeta{TenantID: "tenant-a", Actor: "agent", RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sent.Params["page"] != int64(1) || sent.Params["isActive"] != int64(1) {
		t.Fatalf("unexpected upstream params %v", sent.Params)
	}
	if string(res.Response) != `{"_embedded":{"units":[]}}` {
		t.Fatalf("unexpected response %s", res.Response)
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("want one audit row, got %d", len(repo.recorded))
	}
	call := repo.recorded[0]
	if call.ID != res.CallID || call.Outcome != domain.OutcomeOK || call.UpstreamStatus != 200 || call.TenantID != "tenant-a" || call.RequestID != "req-1" {
		t.Fatalf("unexpected audit row %+v", call)
	}
	if call.Duration != 25*time.Millisecond {
		t.Fatalf("duration = %s", call.Duration)
	}
	if string(call.ParamsJSON) != `{"isActive":1,"page":1}` {
		t.Fatalf("params json = %s", call.ParamsJSON)
	}
}

func TestToolServiceCallRecordsUpstreamStatus(t *testing.T) {
	upstream := &stubUpstream{doFn: func(context.Context, domain.Request) (domain.Response, error) {
		return domain.Response{Status: 201, Body: json.RawMessage(`{"id":5}`)}, nil
	}}
	repo := &stubToolCallRepo{}
	svc := newTestToolService(t, upstream, repo)

	if _, err := svc.Call(context.Background(), "search_units", map[string]any{}, CallMeta{TenantID: "tenant-a"}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(repo.recorded) != 1 || repo.recorded[0].UpstreamStatus != 201 {
		t.Fatalf("audit row must carry the upstream status, got %+v", repo.recorded)
	}
}

func TestToolServiceCallRejectsWithoutCallingUpstream(t *testing.T) {
	upstream := &stubUpstream{}
	repo := &stubToolCallRepo{}
	svc := newTestToolService(t, upstream, repo)

	_, err := svc.Call(context.Background(), "search_units", map[string]any{"bedrooms": "lots", "page": ""}, CallMeta{TenantID: "tenant-a"})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Violations) != 2 {
		t.Fatalf("want 2 violations, got %v", verr.Violations)
	}
	if upstream.calls != 0 {
		t.Fatalf("upstream called %d times for rejected input", upstream.calls)
	}
	if len(repo.recorded) != 1 || repo.recorded[0].Outcome != domain.OutcomeRejected || len(repo.recorded[0].Violations) != 2 {
		t.Fatalf("unexpected audit rows %+v", repo.recorded)
	}
}

func TestToolServiceCallRecordsUpstreamFailure(t *testing.T) {
	upstream := &stubUpstream{doFn: func(context.Context, domain.Request) (domain.Response, error) {
		return domain.Response{}, statusErr{status: 503}
	}}
	repo := &stubToolCallRepo{}
	svc := newTestToolService(t, upstream, repo)

	_, err := svc.Call(context.Background(), "search_units", map[string]any{}, CallMeta{TenantID: "tenant-a"})
	var se statusErr
	if !errors.As(err, &se) || se.status != 503 {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if len(repo.recorded) != 1 || repo.recorded[0].Outcome != domain.OutcomeUpstreamError || repo.recorded[0].UpstreamStatus != 503 {
		t.Fatalf("unexpected audit rows %+v", repo.recorded)
	}
}

func TestToolServiceCallSurvivesAuditFailure(t *testing.T) {
	repo := &stubToolCallRepo{recordFn: func(context.Context, domain.ToolCall) error {
		return errors.New("disk full")
	}}
	svc := newTestToolService(t, &stubUpstream{}, repo)
	if _, err := svc.Call(context.Background(), "search_units", map[string]any{}, CallMeta{TenantID: "tenant-a"}); err != nil {
		t.Fatalf("audit failure must not fail the call: %v", err)
	}
}

func TestToolServiceUnknownOperation(t *testing.T) {
	repo := &stubToolCallRepo{}
	svc := newTestToolService(t, &stubUpstream{}, repo)
	_, err := svc.Call(context.Background(), "drop_tables", nil, CallMeta{})
	if !errors.Is(err, domain.ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if len(repo.recorded) != 0 {
		t.Fatalf("unknown operations are not audited, got %+v", repo.recorded)
	}
}

func TestToolServiceValidateIgnoresUnknownFields(t *testing.T) {
	svc := newTestToolService(t, &stubUpstream{}, &stubToolCallRepo{})
	req, err := svc.Validate("search_units", map[string]any{"bedrooms": 3, "colour": "blue"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, ok := req.Params["colour"]; ok {
		t.Fatalf("unknown field forwarded: %v", req.Params)
	}
}

func TestToolCallServiceList(t *testing.T) {
	var got domain.ToolCallFilter
	repo := &stubToolCallRepo{listFn: func(_ context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error) {
		got = filter
		return []domain.ToolCall{{ID: "c1"}}, nil
	}}
	svc := NewToolCallService(repo)

	if _, err := svc.List(context.Background(), domain.ToolCallFilter{}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter without tenant, got %v", err)
	}
	if _, err := svc.List(context.Background(), domain.ToolCallFilter{TenantID: "t", Outcome: "weird"}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for outcome, got %v", err)
	}

	calls, err := svc.List(context.Background(), domain.ToolCallFilter{TenantID: "t", Limit: 5000})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(calls) != 1 || got.Limit != 1000 {
		t.Fatalf("limit not clamped: %+v", got)
	}

	if _, err := svc.List(context.Background(), domain.ToolCallFilter{TenantID: "t"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.Limit != 100 {
		t.Fatalf("default limit = %d", got.Limit)
	}
}

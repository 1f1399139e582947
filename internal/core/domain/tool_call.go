package domain

import (
	"encoding/json"
	"time"
)

type CallOutcome string

const (
	OutcomeOK            CallOutcome = "ok"
	OutcomeRejected      CallOutcome = "rejected"
	OutcomeUpstreamError CallOutcome = "upstream_error"
)

// ToolCall is the audit record of one tool invocation.
type ToolCall struct {
	ID             string
	TenantID       string
	Operation      string
	Actor          string
	RequestID      string
	Outcome        CallOutcome
	Violations     []Violation
	ParamsJSON     json.RawMessage
	UpstreamStatus int
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

type ToolCallFilter struct {
	TenantID  string
	Operation string
	Outcome   CallOutcome
	After     time.Time
	Limit     int
}

type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
}

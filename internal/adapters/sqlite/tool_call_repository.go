package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

type toolCallModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	TenantID       string    `gorm:"column:tenant_id;not null"`
	Operation      string    `gorm:"column:operation;not null"`
	Actor          string    `gorm:"column:actor;not null"`
	RequestID      string    `gorm:"column:request_id;not null"`
	Outcome        string    `gorm:"column:outcome;not null"`
	ViolationsJSON string    `gorm:"column:violations_json;not null"`
	ParamsJSON     string    `gorm:"column:params_json;not null"`
	UpstreamStatus int       `gorm:"column:upstream_status;not null"`
	Error          string    `gorm:"column:error;not null"`
	DurationMS     int64     `gorm:"column:duration_ms;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (toolCallModel) TableName() string {
	return "tool_calls"
}

// ToolCallRepository is the append-only audit log of tool invocations.
type ToolCallRepository struct {
	db *gormsqlite.DB
}

func NewToolCallRepository(db *gormsqlite.DB) *ToolCallRepository {
	return &ToolCallRepository{db: db}
}

func (r *ToolCallRepository) Record(ctx context.Context, call domain.ToolCall) error {
	violations := call.Violations
	if violations == nil {
		violations = []domain.Violation{}
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}
	params := "{}"
	if len(call.ParamsJSON) > 0 {
		params = string(call.ParamsJSON)
	}

	model := toolCallModel{
		ID:             call.ID,
		TenantID:       call.TenantID,
		Operation:      call.Operation,
		Actor:          call.Actor,
		RequestID:      call.RequestID,
		Outcome:        string(call.Outcome),
		ViolationsJSON: string(violationsJSON),
		ParamsJSON:     params,
		UpstreamStatus: call.UpstreamStatus,
		Error:          call.Error,
		DurationMS:     call.Duration.Milliseconds(),
		CreatedAt:      call.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// List returns the tenant's calls newest first.
func (r *ToolCallRepository) List(ctx context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error) {
	var models []toolCallModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		q := tx.Where("tenant_id = ?", filter.TenantID)
		if filter.Operation != "" {
			q = q.Where("operation = ?", filter.Operation)
		}
		if filter.Outcome != "" {
			q = q.Where("outcome = ?", string(filter.Outcome))
		}
		if !filter.After.IsZero() {
			q = q.Where("created_at > ?", filter.After.UTC())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q.Order("created_at DESC").Order("id DESC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}

	out := make([]domain.ToolCall, 0, len(models))
	for _, m := range models {
		call := domain.ToolCall{
			ID:             m.ID,
			TenantID:       m.TenantID,
			Operation:      m.Operation,
			Actor:          m.Actor,
			RequestID:      m.RequestID,
			Outcome:        domain.CallOutcome(m.Outcome),
			ParamsJSON:     json.RawMessage(m.ParamsJSON),
			UpstreamStatus: m.UpstreamStatus,
			Error:          m.Error,
			Duration:       time.Duration(m.DurationMS) * time.Millisecond,
			CreatedAt:      m.CreatedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(m.ViolationsJSON), &call.Violations); err != nil {
			return nil, fmt.Errorf("decode violations for %s: %w", m.ID, err)
		}
		out = append(out, call)
	}
	return out, nil
}

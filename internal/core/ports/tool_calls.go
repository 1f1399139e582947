package ports

import (
	"context"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

type ToolCallRepository interface {
	Record(ctx context.Context, call domain.ToolCall) error
	List(ctx context.Context, filter domain.ToolCallFilter) ([]domain.ToolCall, error)
}

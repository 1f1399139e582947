package ports

import (
	"context"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

// UpstreamClient sends a built request to the property-management API and
// returns the status and raw JSON body of a 2xx answer.
type UpstreamClient interface {
	Do(ctx context.Context, req domain.Request) (domain.Response, error)
}

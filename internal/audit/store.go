package audit

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists audit events. Implementations that share the ledger database
// must join the ledger transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByActor returns at most limit events by actor, most recent first.
	ListByActor(ctx context.Context, actor id.Address, limit int) ([]Event, error)
}

// Package service implements the economic core: the account ledger, the item
// and equipment store, the enhancement engine and the marketplace engine.
// Services read and mutate state only through the store adapter; correctness
// under concurrent callers comes from the store's atomic conditional updates,
// not from cross-key transactions.
package service

import (
	"context"

	"game-economy-service/internal/models"
)

// AuditSink receives one structured event for every mutating operation.
// Emission is mandatory and must not fail the operation: implementations
// swallow and log publish errors.
type AuditSink interface {
	EmitAudit(ctx context.Context, eventType, actor, action string, detail map[string]any)
	EmitBid(ctx context.Context, auctionID int64, bidder string, amount int64)
	EmitSold(ctx context.Context, listing *models.AuctionListing, buyer string, price int64)
}

// PowerObserver is notified after any operation that changes an account's
// derived combat power. The core does not compute power inline; the observer
// triggers the recompute-and-publish path.
type PowerObserver interface {
	PowerChanged(ctx context.Context, username, cause string)
}

// NopAudit discards all events. Used where no sink is wired.
type NopAudit struct{}

func (NopAudit) EmitAudit(context.Context, string, string, string, map[string]any) {}
func (NopAudit) EmitBid(context.Context, int64, string, int64)                     {}
func (NopAudit) EmitSold(context.Context, *models.AuctionListing, string, int64)   {}

// NopPower discards power notifications.
type NopPower struct{}

func (NopPower) PowerChanged(context.Context, string, string) {}

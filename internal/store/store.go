// Package store persists the economic entities over the shared key-value
// backend. Cross-key atomicity is never assumed: every conditional mutation
// (debit, stack adjust, lock acquire, status transition) is a single atomic
// per-key operation.
package store

import (
	"context"

	"game-economy-service/internal/models"
)

// RankEntry is one leaderboard row.
type RankEntry struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// Store is the persistence surface consumed by the services. Implemented by
// Redis (production) and Memory (tests, same conditional-update semantics).
type Store interface {
	// Accounts.
	CreateAccount(ctx context.Context, username string, gold int64) (*models.Account, error)
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	Credit(ctx context.Context, username string, amount int64) (int64, error)
	Debit(ctx context.Context, username string, amount int64) (int64, error)
	SetBanned(ctx context.Context, username string, banned bool) error

	// Inventory stacks.
	GetInventory(ctx context.Context, owner string) ([]models.InventoryStack, error)
	AdjustStack(ctx context.Context, owner, itemID string, delta int) (int, error)

	// Equipment instances and slot assignments.
	PutEquipment(ctx context.Context, eq *models.EquipmentInstance) error
	GetEquipment(ctx context.Context, uid string) (*models.EquipmentInstance, error)
	UpdateEquipment(ctx context.Context, eq *models.EquipmentInstance) error
	DeleteEquipment(ctx context.Context, uid string) error
	AcquireLock(ctx context.Context, uid, reason string) error
	ReleaseLock(ctx context.Context, uid, reason string) error
	GetSlots(ctx context.Context, owner string) (map[string]string, error)
	SetSlot(ctx context.Context, owner, slot, uid string) error
	ClearSlot(ctx context.Context, owner, slot string) error

	// Auction listings.
	NextAuctionID(ctx context.Context) (int64, error)
	PutListing(ctx context.Context, listing *models.AuctionListing) error
	GetListing(ctx context.Context, auctionID int64) (*models.AuctionListing, error)
	UpdateListing(ctx context.Context, listing *models.AuctionListing) error
	PlaceBid(ctx context.Context, auctionID int64, bidder string, amount int64) error
	SettleListing(ctx context.Context, auctionID int64, buyer string) (*models.AuctionListing, error)
	CancelListing(ctx context.Context, auctionID int64) error
	TransitionListing(ctx context.Context, auctionID int64, expect, next string) error
	RemoveOpenIndex(ctx context.Context, auctionID int64) error
	OpenListings(ctx context.Context, limit int64) ([]models.AuctionListing, error)
	AllListings(ctx context.Context, limit int64) ([]models.AuctionListing, error)

	// Leaderboards.
	UpdateRank(ctx context.Context, board, username string, score int64) error
	TopRanks(ctx context.Context, board string, limit int64) ([]RankEntry, error)

	// Transfer reconciliation queue.
	PushPendingCredit(ctx context.Context, pc models.PendingCredit) error
	PopPendingCredit(ctx context.Context) (*models.PendingCredit, error)
}

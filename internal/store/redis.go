package store

import (
	"fmt"

	"game-economy-service/internal/redisclient"
)

// Key layout. Field names and shapes are the on-disk contract shared with
// administrative tooling.
const (
	auctionCounterKey = "auction:next_id"
	openAuctionsKey   = "auction:open"
	allAuctionsKey    = "auction:all"
	pendingCreditsKey = "ledger:pending_credits"

	// Leaderboard names.
	BoardGold  = "leaderboard:gold"
	BoardPower = "leaderboard:power"
)

func accountKey(username string) string { return fmt.Sprintf("user:%s", username) }
func inventoryKey(owner string) string  { return fmt.Sprintf("inventory:%s", owner) }
func equipmentKey(uid string) string    { return fmt.Sprintf("equipment:%s", uid) }
func slotsKey(owner string) string      { return fmt.Sprintf("equipslots:%s", owner) }
func auctionKey(auctionID int64) string { return fmt.Sprintf("auction:%d", auctionID) }

// Redis is the production Store backed by the shared key-value adapter.
type Redis struct {
	client *redisclient.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(client *redisclient.Client) *Redis {
	return &Redis{client: client}
}

var _ Store = (*Redis)(nil)

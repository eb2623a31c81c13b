package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/debit_gold.lua
var debitGoldScript string

//go:embed scripts/credit_gold.lua
var creditGoldScript string

//go:embed scripts/adjust_stack.lua
var adjustStackScript string

//go:embed scripts/acquire_item_lock.lua
var acquireLockScript string

//go:embed scripts/release_item_lock.lua
var releaseLockScript string

//go:embed scripts/close_auction.lua
var closeAuctionScript string

//go:embed scripts/place_bid.lua
var placeBidScript string

//go:embed scripts/settle_auction.lua
var settleAuctionScript string

//go:embed scripts/cancel_auction.lua
var cancelAuctionScript string

// Script result codes shared by the Lua scripts.
const (
	ScriptRejected = 0  // conditional update lost (lock held, status mismatch)
	ScriptRefused  = -1 // would violate a non-negativity constraint
	ScriptAbsent   = -2 // target key does not exist
)

type Client struct {
	rdb           *redis.Client
	debitScript   *redis.Script
	creditScript  *redis.Script
	stackScript   *redis.Script
	acquireScript *redis.Script
	releaseScript *redis.Script
	closeScript   *redis.Script
	bidScript     *redis.Script
	settleScript  *redis.Script
	cancelScript  *redis.Script
}

// NewClient creates a new Redis client with the conditional-mutation Lua
// scripts loaded.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		debitScript:   redis.NewScript(debitGoldScript),
		creditScript:  redis.NewScript(creditGoldScript),
		stackScript:   redis.NewScript(adjustStackScript),
		acquireScript: redis.NewScript(acquireLockScript),
		releaseScript: redis.NewScript(releaseLockScript),
		closeScript:   redis.NewScript(closeAuctionScript),
		bidScript:     redis.NewScript(placeBidScript),
		settleScript:  redis.NewScript(settleAuctionScript),
		cancelScript:  redis.NewScript(cancelAuctionScript),
	}, nil
}

// GetClient returns the underlying Redis client.
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) runInt(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (int64, error) {
	result, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return 0, err
	}
	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return code, nil
}

// DebitGold atomically decrements an account's gold, rejecting a debit that
// would go negative. Returns the new balance or a script result code.
func (c *Client) DebitGold(ctx context.Context, accountKey string, amount int64) (int64, error) {
	res, err := c.runInt(ctx, c.debitScript, []string{accountKey}, amount)
	if err != nil {
		return 0, fmt.Errorf("debit gold script failed: %w", err)
	}
	return res, nil
}

// CreditGold atomically increments an existing account's gold. Returns the
// new balance or ScriptAbsent.
func (c *Client) CreditGold(ctx context.Context, accountKey string, amount int64) (int64, error) {
	res, err := c.runInt(ctx, c.creditScript, []string{accountKey}, amount)
	if err != nil {
		return 0, fmt.Errorf("credit gold script failed: %w", err)
	}
	return res, nil
}

// AdjustStack atomically applies a delta to an inventory stack. Returns the
// new quantity, or ScriptRefused when stock is insufficient.
func (c *Client) AdjustStack(ctx context.Context, inventoryKey, itemID string, delta int) (int64, error) {
	res, err := c.runInt(ctx, c.stackScript, []string{inventoryKey}, itemID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust stack script failed: %w", err)
	}
	return res, nil
}

// AcquireItemLock conditionally sets the lock flag on an equipment hash.
func (c *Client) AcquireItemLock(ctx context.Context, equipmentKey, reason string) (int64, error) {
	res, err := c.runInt(ctx, c.acquireScript, []string{equipmentKey}, reason)
	if err != nil {
		return 0, fmt.Errorf("acquire lock script failed: %w", err)
	}
	return res, nil
}

// ReleaseItemLock clears the lock flag when held for the stated reason.
func (c *Client) ReleaseItemLock(ctx context.Context, equipmentKey, reason string) (int64, error) {
	res, err := c.runInt(ctx, c.releaseScript, []string{equipmentKey}, reason)
	if err != nil {
		return 0, fmt.Errorf("release lock script failed: %w", err)
	}
	return res, nil
}

// CloseAuction compare-and-sets an auction status so that only one of two
// concurrent closers wins the transition.
func (c *Client) CloseAuction(ctx context.Context, auctionKey, expect, next string) (int64, error) {
	res, err := c.runInt(ctx, c.closeScript, []string{auctionKey}, expect, next)
	if err != nil {
		return 0, fmt.Errorf("close auction script failed: %w", err)
	}
	return res, nil
}

// PlaceBid conditionally raises an open auction's current price. Returns
// ScriptRejected when the listing is no longer open and ScriptRefused when
// the amount does not exceed the current price.
func (c *Client) PlaceBid(ctx context.Context, auctionKey, bidder string, amount int64) (int64, error) {
	res, err := c.runInt(ctx, c.bidScript, []string{auctionKey}, bidder, amount)
	if err != nil {
		return 0, fmt.Errorf("place bid script failed: %w", err)
	}
	return res, nil
}

// SettleAuction claims an open auction for a buyer: the status flip to sold
// and the final price write happen in one step. On a claim the result code is
// 1 and the pre-claim price and bidder are returned, so a failed settlement
// can be reverted exactly.
func (c *Client) SettleAuction(ctx context.Context, auctionKey, buyer string) (int64, int64, string, error) {
	result, err := c.settleScript.Run(ctx, c.rdb, []string{auctionKey}, buyer).Result()
	if err != nil {
		return 0, 0, "", fmt.Errorf("settle auction script failed: %w", err)
	}
	switch res := result.(type) {
	case int64:
		return res, 0, "", nil
	case []interface{}:
		if len(res) != 2 {
			return 0, 0, "", fmt.Errorf("unexpected settle result length %d", len(res))
		}
		price, ok := res[0].(int64)
		if !ok {
			return 0, 0, "", fmt.Errorf("unexpected settle price type %T", res[0])
		}
		bidder, _ := res[1].(string)
		return 1, price, bidder, nil
	default:
		return 0, 0, "", fmt.Errorf("unexpected script result type %T", result)
	}
}

// CancelAuction cancels an open auction only when no bid stands; the bidder
// check and the status flip run in one step. Returns ScriptRefused when a bid
// stands.
func (c *Client) CancelAuction(ctx context.Context, auctionKey string) (int64, error) {
	res, err := c.runInt(ctx, c.cancelScript, []string{auctionKey})
	if err != nil {
		return 0, fmt.Errorf("cancel auction script failed: %w", err)
	}
	return res, nil
}

// NextID increments and returns a monotonic counter.
func (c *Client) NextID(ctx context.Context, counterKey string) (int64, error) {
	return c.rdb.Incr(ctx, counterKey).Result()
}

// AppendStream appends an entry to a capped stream.
func (c *Client) AppendStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) error {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// ReadStreamReverse returns the latest count entries of a stream, newest first.
func (c *Client) ReadStreamReverse(ctx context.Context, stream string, count int64) ([]redis.XMessage, error) {
	return c.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
}

// MarkEventProcessed records an event id with a TTL; returns false when the
// id was already present (consumer idempotency).
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("processed:%s", eventID), "1", ttl).Result()
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
)

// NextAuctionID allocates the next id from the monotonic counter.
func (s *Redis) NextAuctionID(ctx context.Context) (int64, error) {
	return s.client.NextID(ctx, auctionCounterKey)
}

// PutListing persists a listing hash and indexes it: the open-listings zset
// is scored by creation time (discovery queries return most-recent first),
// the all-listings zset by id.
func (s *Redis) PutListing(ctx context.Context, listing *models.AuctionListing) error {
	rdb := s.client.GetClient()

	fields := map[string]interface{}{
		"seller":         listing.Seller,
		"kind":           listing.Kind,
		"item_id":        listing.ItemID,
		"equipment_uid":  listing.EquipmentUID,
		"qty":            strconv.Itoa(listing.Quantity),
		"start_price":    strconv.FormatInt(listing.StartPrice, 10),
		"current_price":  strconv.FormatInt(listing.CurrentPrice, 10),
		"current_bidder": listing.CurrentBidder,
		"buyout_price":   strconv.FormatInt(listing.BuyoutPrice, 10),
		"status":         listing.Status,
		"created_at":     listing.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := rdb.HSet(ctx, auctionKey(listing.AuctionID), fields).Err(); err != nil {
		return fmt.Errorf("failed to persist listing: %w", err)
	}

	member := strconv.FormatInt(listing.AuctionID, 10)
	pipe := rdb.Pipeline()
	pipe.ZAdd(ctx, openAuctionsKey, &redis.Z{Score: float64(listing.CreatedAt.UnixNano()), Member: member})
	pipe.ZAdd(ctx, allAuctionsKey, &redis.Z{Score: float64(listing.AuctionID), Member: member})
	_, err := pipe.Exec(ctx)
	return err
}

// GetListing loads one listing.
func (s *Redis) GetListing(ctx context.Context, auctionID int64) (*models.AuctionListing, error) {
	fields, err := s.client.GetClient().HGetAll(ctx, auctionKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	return listingFromFields(auctionID, fields), nil
}

func listingFromFields(auctionID int64, fields map[string]string) *models.AuctionListing {
	qty, _ := strconv.Atoi(fields["qty"])
	startPrice, _ := strconv.ParseInt(fields["start_price"], 10, 64)
	currentPrice, _ := strconv.ParseInt(fields["current_price"], 10, 64)
	buyoutPrice, _ := strconv.ParseInt(fields["buyout_price"], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &models.AuctionListing{
		AuctionID:     auctionID,
		Seller:        fields["seller"],
		Kind:          fields["kind"],
		ItemID:        fields["item_id"],
		EquipmentUID:  fields["equipment_uid"],
		Quantity:      qty,
		StartPrice:    startPrice,
		CurrentPrice:  currentPrice,
		CurrentBidder: fields["current_bidder"],
		BuyoutPrice:   buyoutPrice,
		Status:        fields["status"],
		CreatedAt:     createdAt,
	}
}

// UpdateListing rewrites the bid fields of a listing. Status transitions go
// through TransitionListing, never through here.
func (s *Redis) UpdateListing(ctx context.Context, listing *models.AuctionListing) error {
	return s.client.GetClient().HSet(ctx, auctionKey(listing.AuctionID), map[string]interface{}{
		"current_price":  strconv.FormatInt(listing.CurrentPrice, 10),
		"current_bidder": listing.CurrentBidder,
	}).Err()
}

// PlaceBid conditionally raises the current price of an open listing. The
// status and price checks run atomically with the update, so concurrent bids
// can never regress the price.
func (s *Redis) PlaceBid(ctx context.Context, auctionID int64, bidder string, amount int64) error {
	res, err := s.client.PlaceBid(ctx, auctionKey(auctionID), bidder, amount)
	if err != nil {
		return err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	case redisclient.ScriptRefused:
		return fmt.Errorf("bid %d on auction %d too low: %w", amount, auctionID, models.ErrInvalidArgument)
	}
	return nil
}

// SettleListing atomically claims an open listing for buyer: the status flips
// to sold and the settlement price (buyout when set, else the current price at
// claim time) is written with the buyer as final bidder, all in one script.
// Returns the listing as it stood immediately before the claim so a failed
// settlement can be reverted exactly.
func (s *Redis) SettleListing(ctx context.Context, auctionID int64, buyer string) (*models.AuctionListing, error) {
	prior, err := s.GetListing(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	code, prevPrice, prevBidder, err := s.client.SettleAuction(ctx, auctionKey(auctionID), buyer)
	if err != nil {
		return nil, err
	}
	switch code {
	case redisclient.ScriptAbsent:
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	// The script's pre-claim bid state is authoritative over the read above.
	prior.Status = models.AuctionStatusOpen
	prior.CurrentPrice = prevPrice
	prior.CurrentBidder = prevBidder
	return prior, nil
}

// CancelListing transitions an open listing to cancelled only when no bid
// stands; the bidder check runs atomically with the flip.
func (s *Redis) CancelListing(ctx context.Context, auctionID int64) error {
	res, err := s.client.CancelAuction(ctx, auctionKey(auctionID))
	if err != nil {
		return err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	case redisclient.ScriptRefused:
		return fmt.Errorf("auction %d has a standing bid: %w", auctionID, models.ErrHasBids)
	}
	return nil
}

// TransitionListing compare-and-sets the listing status. The loser of a race
// observes the mismatch and gets AuctionClosed.
func (s *Redis) TransitionListing(ctx context.Context, auctionID int64, expect, next string) error {
	res, err := s.client.CloseAuction(ctx, auctionKey(auctionID), expect, next)
	if err != nil {
		return err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	return nil
}

// RemoveOpenIndex drops a listing from the open-listings index.
func (s *Redis) RemoveOpenIndex(ctx context.Context, auctionID int64) error {
	return s.client.GetClient().ZRem(ctx, openAuctionsKey, strconv.FormatInt(auctionID, 10)).Err()
}

// OpenListings returns open listings, most recent first.
func (s *Redis) OpenListings(ctx context.Context, limit int64) ([]models.AuctionListing, error) {
	return s.listingsFromIndex(ctx, openAuctionsKey, limit)
}

// AllListings returns listings regardless of status, newest id first.
func (s *Redis) AllListings(ctx context.Context, limit int64) ([]models.AuctionListing, error) {
	return s.listingsFromIndex(ctx, allAuctionsKey, limit)
}

func (s *Redis) listingsFromIndex(ctx context.Context, index string, limit int64) ([]models.AuctionListing, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.GetClient().ZRevRange(ctx, index, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	listings := make([]models.AuctionListing, 0, len(ids))
	for _, raw := range ids {
		auctionID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		listing, err := s.GetListing(ctx, auctionID)
		if err != nil {
			continue // index can briefly lead the hash; skip holes
		}
		listings = append(listings, *listing)
	}
	return listings, nil
}

// UpdateRank publishes a member score to a leaderboard zset.
func (s *Redis) UpdateRank(ctx context.Context, board, username string, score int64) error {
	return s.client.GetClient().ZAdd(ctx, board, &redis.Z{Score: float64(score), Member: username}).Err()
}

// TopRanks returns the top limit members of a leaderboard, best first.
func (s *Redis) TopRanks(ctx context.Context, board string, limit int64) ([]RankEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.GetClient().ZRevRangeWithScores(ctx, board, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]RankEntry, 0, len(rows))
	for _, row := range rows {
		name, _ := row.Member.(string)
		entries = append(entries, RankEntry{Username: name, Score: int64(row.Score)})
	}
	return entries, nil
}

// PushPendingCredit appends an unresolved credit to the reconciliation queue.
func (s *Redis) PushPendingCredit(ctx context.Context, pc models.PendingCredit) error {
	raw, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to marshal pending credit: %w", err)
	}
	return s.client.GetClient().RPush(ctx, pendingCreditsKey, raw).Err()
}

// PopPendingCredit takes the oldest unresolved credit off the queue. Returns
// nil when the queue is empty.
func (s *Redis) PopPendingCredit(ctx context.Context) (*models.PendingCredit, error) {
	raw, err := s.client.GetClient().LPop(ctx, pendingCreditsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pc models.PendingCredit
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending credit: %w", err)
	}
	return &pc, nil
}

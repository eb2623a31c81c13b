package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"game-economy-service/internal/models"
)

// Memory is an in-process Store with the same conditional-update semantics as
// the Redis implementation, each primitive atomic under one mutex. Used by
// tests and local development; it is what lets the concurrency properties of
// the marketplace be exercised without a Redis instance.
type Memory struct {
	mu sync.Mutex

	accounts  map[string]*models.Account
	inventory map[string]map[string]int // owner -> item -> qty
	equipment map[string]*models.EquipmentInstance
	slots     map[string]map[string]string // owner -> slot -> uid
	auctions  map[int64]*models.AuctionListing
	openIndex map[int64]time.Time
	nextID    int64
	ranks     map[string]map[string]int64 // board -> member -> score
	pending   []models.PendingCredit
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]*models.Account),
		inventory: make(map[string]map[string]int),
		equipment: make(map[string]*models.EquipmentInstance),
		slots:     make(map[string]map[string]string),
		auctions:  make(map[int64]*models.AuctionListing),
		openIndex: make(map[int64]time.Time),
		ranks:     make(map[string]map[string]int64),
	}
}

func (s *Memory) CreateAccount(_ context.Context, username string, gold int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; ok {
		return nil, fmt.Errorf("account %s: %w", username, models.ErrConflict)
	}
	acct := &models.Account{Username: username, Gold: gold, CreatedAt: time.Now().UTC()}
	s.accounts[username] = acct
	copied := *acct
	return &copied, nil
}

func (s *Memory) GetAccount(_ context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	copied := *acct
	return &copied, nil
}

func (s *Memory) Credit(_ context.Context, username string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	acct.Gold += amount
	return acct.Gold, nil
}

func (s *Memory) Debit(_ context.Context, username string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	if acct.Gold < amount {
		return 0, fmt.Errorf("account %s: %w", username, models.ErrInsufficientFunds)
	}
	acct.Gold -= amount
	return acct.Gold, nil
}

func (s *Memory) SetBanned(_ context.Context, username string, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	if !ok {
		return fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	acct.Banned = banned
	return nil
}

func (s *Memory) GetInventory(_ context.Context, owner string) ([]models.InventoryStack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stacks := make([]models.InventoryStack, 0, len(s.inventory[owner]))
	for itemID, qty := range s.inventory[owner] {
		if qty > 0 {
			stacks = append(stacks, models.InventoryStack{Owner: owner, ItemID: itemID, Quantity: qty})
		}
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].ItemID < stacks[j].ItemID })
	return stacks, nil
}

func (s *Memory) AdjustStack(_ context.Context, owner, itemID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.inventory[owner][itemID]
	next := cur + delta
	if next < 0 {
		return 0, fmt.Errorf("stack %s/%s: %w", owner, itemID, models.ErrInsufficientStock)
	}
	if s.inventory[owner] == nil {
		s.inventory[owner] = make(map[string]int)
	}
	if next == 0 {
		delete(s.inventory[owner], itemID)
	} else {
		s.inventory[owner][itemID] = next
	}
	return next, nil
}

func (s *Memory) PutEquipment(_ context.Context, eq *models.EquipmentInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *eq
	s.equipment[eq.UID] = &copied
	return nil
}

func (s *Memory) GetEquipment(_ context.Context, uid string) (*models.EquipmentInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.equipment[uid]
	if !ok {
		return nil, fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	}
	copied := *eq
	return &copied, nil
}

func (s *Memory) UpdateEquipment(_ context.Context, eq *models.EquipmentInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.equipment[eq.UID]
	if !ok {
		return fmt.Errorf("equipment %s: %w", eq.UID, models.ErrNotFound)
	}
	cur.Owner = eq.Owner
	cur.EnhancementLevel = eq.EnhancementLevel
	cur.Attributes = eq.Attributes
	return nil
}

func (s *Memory) DeleteEquipment(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.equipment, uid)
	return nil
}

func (s *Memory) AcquireLock(_ context.Context, uid, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.equipment[uid]
	if !ok {
		return fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	}
	if eq.Locked {
		return fmt.Errorf("equipment %s: %w", uid, models.ErrAlreadyLocked)
	}
	eq.Locked = true
	eq.LockReason = reason
	return nil
}

func (s *Memory) ReleaseLock(_ context.Context, uid, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, ok := s.equipment[uid]
	if !ok {
		return fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	}
	if !eq.Locked || eq.LockReason != reason {
		return fmt.Errorf("equipment %s (%s): %w", uid, reason, models.ErrNotLocked)
	}
	eq.Locked = false
	eq.LockReason = ""
	return nil
}

func (s *Memory) GetSlots(_ context.Context, owner string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.slots[owner]))
	for slot, uid := range s.slots[owner] {
		out[slot] = uid
	}
	return out, nil
}

func (s *Memory) SetSlot(_ context.Context, owner, slot, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[owner] == nil {
		s.slots[owner] = make(map[string]string)
	}
	s.slots[owner][slot] = uid
	return nil
}

func (s *Memory) ClearSlot(_ context.Context, owner, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots[owner], slot)
	return nil
}

func (s *Memory) NextAuctionID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Memory) PutListing(_ context.Context, listing *models.AuctionListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *listing
	s.auctions[listing.AuctionID] = &copied
	if listing.Status == models.AuctionStatusOpen {
		s.openIndex[listing.AuctionID] = listing.CreatedAt
	}
	return nil
}

func (s *Memory) GetListing(_ context.Context, auctionID int64) (*models.AuctionListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	copied := *listing
	return &copied, nil
}

func (s *Memory) UpdateListing(_ context.Context, listing *models.AuctionListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[listing.AuctionID]
	if !ok {
		return fmt.Errorf("auction %d: %w", listing.AuctionID, models.ErrNotFound)
	}
	cur.CurrentPrice = listing.CurrentPrice
	cur.CurrentBidder = listing.CurrentBidder
	return nil
}

func (s *Memory) PlaceBid(_ context.Context, auctionID int64, bidder string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	if listing.Status != models.AuctionStatusOpen {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	if amount <= listing.CurrentPrice {
		return fmt.Errorf("bid %d on auction %d too low: %w", amount, auctionID, models.ErrInvalidArgument)
	}
	listing.CurrentPrice = amount
	listing.CurrentBidder = bidder
	return nil
}

func (s *Memory) SettleListing(_ context.Context, auctionID int64, buyer string) (*models.AuctionListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	if listing.Status != models.AuctionStatusOpen {
		return nil, fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	prior := *listing
	price := listing.CurrentPrice
	if listing.BuyoutPrice > 0 {
		price = listing.BuyoutPrice
	}
	listing.Status = models.AuctionStatusSold
	listing.CurrentPrice = price
	listing.CurrentBidder = buyer
	return &prior, nil
}

func (s *Memory) CancelListing(_ context.Context, auctionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	if listing.Status != models.AuctionStatusOpen {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	if listing.CurrentBidder != "" {
		return fmt.Errorf("auction %d has a standing bid: %w", auctionID, models.ErrHasBids)
	}
	listing.Status = models.AuctionStatusCancelled
	return nil
}

func (s *Memory) TransitionListing(_ context.Context, auctionID int64, expect, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotFound)
	}
	if listing.Status != expect {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	listing.Status = next
	return nil
}

func (s *Memory) RemoveOpenIndex(_ context.Context, auctionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.openIndex, auctionID)
	return nil
}

func (s *Memory) OpenListings(_ context.Context, limit int64) ([]models.AuctionListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.openIndex))
	for id := range s.openIndex {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.openIndex[ids[i]], s.openIndex[ids[j]]
		if ti.Equal(tj) {
			return ids[i] > ids[j]
		}
		return ti.After(tj)
	})
	return s.collect(ids, limit), nil
}

func (s *Memory) AllListings(_ context.Context, limit int64) ([]models.AuctionListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.auctions))
	for id := range s.auctions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return s.collect(ids, limit), nil
}

func (s *Memory) collect(ids []int64, limit int64) []models.AuctionListing {
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.AuctionListing, 0, limit)
	for _, id := range ids {
		if int64(len(out)) >= limit {
			break
		}
		if listing, ok := s.auctions[id]; ok {
			out = append(out, *listing)
		}
	}
	return out
}

func (s *Memory) UpdateRank(_ context.Context, board, username string, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ranks[board] == nil {
		s.ranks[board] = make(map[string]int64)
	}
	s.ranks[board][username] = score
	return nil
}

func (s *Memory) TopRanks(_ context.Context, board string, limit int64) ([]RankEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	entries := make([]RankEntry, 0, len(s.ranks[board]))
	for name, score := range s.ranks[board] {
		entries = append(entries, RankEntry{Username: name, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score == entries[j].Score {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].Score > entries[j].Score
	})
	if int64(len(entries)) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Memory) PushPendingCredit(_ context.Context, pc models.PendingCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pc)
	return nil
}

func (s *Memory) PopPendingCredit(_ context.Context) (*models.PendingCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	pc := s.pending[0]
	s.pending = s.pending[1:]
	return &pc, nil
}

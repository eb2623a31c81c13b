package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
)

type marketFixture struct {
	st     *store.Memory
	ledger *Ledger
	equip  *EquipmentService
	market *Marketplace
}

func newMarketFixture(t *testing.T, usernames ...string) *marketFixture {
	t.Helper()
	st := store.NewMemory()
	ledger := NewLedger(st, NopAudit{})
	equip := NewEquipmentService(st, ledger, NopAudit{}, NopPower{}, rand.NewSource(7))
	market := NewMarketplace(st, ledger, equip, NopAudit{}, NopPower{})

	for _, name := range usernames {
		_, err := ledger.CreateAccount(context.Background(), name)
		require.NoError(t, err)
	}
	return &marketFixture{st: st, ledger: ledger, equip: equip, market: market}
}

func (f *marketFixture) gold(t *testing.T, username string) int64 {
	t.Helper()
	acct, err := f.ledger.GetAccount(context.Background(), username)
	require.NoError(t, err)
	return acct.Gold
}

func (f *marketFixture) grantGold(t *testing.T, username string, amount int64) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), "test", username, amount)
	require.NoError(t, err)
}

func TestCreateListingValidation(t *testing.T) {
	f := newMarketFixture(t, "seller")
	ctx := context.Background()

	_, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 0,
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100, BuyoutPrice: 50,
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: "mystery", StartPrice: 100,
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.market.Create(ctx, CreateParams{
		Seller: "nobody", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateStackListingEscrowsQuantity(t *testing.T) {
	f := newMarketFixture(t, "seller")
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 5)
	require.NoError(t, err)

	_, err = f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 6, StartPrice: 10,
	})
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 3, StartPrice: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusOpen, listing.Status)

	stacks, err := f.st.GetInventory(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, 2, stacks[0].Quantity)
}

func TestEquipAndListMutualExclusion(t *testing.T) {
	f := newMarketFixture(t, "seller")
	ctx := context.Background()

	eq, err := f.equip.Generate(ctx, "seller", models.SlotWeapon)
	require.NoError(t, err)

	// Listing an equipped instance fails.
	require.NoError(t, f.equip.Equip(ctx, "seller", eq.UID, models.SlotWeapon))
	_, err = f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyLocked)

	// Equipping a listed instance fails.
	require.NoError(t, f.equip.Unequip(ctx, "seller", models.SlotWeapon))
	_, err = f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, f.equip.Equip(ctx, "seller", eq.UID, models.SlotWeapon), models.ErrAlreadyLocked)
}

func TestBidMatrix(t *testing.T) {
	f := newMarketFixture(t, "seller", "bidder", "rich")
	f.grantGold(t, "rich", 10000)
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100,
	})
	require.NoError(t, err)
	id := listing.AuctionID

	assert.ErrorIs(t, f.market.Bid(ctx, "seller", id, 150), models.ErrInvalidArgument)
	assert.ErrorIs(t, f.market.Bid(ctx, "rich", id, 100), models.ErrInvalidArgument) // not above current
	assert.ErrorIs(t, f.market.Bid(ctx, "bidder", id, 150), models.ErrInsufficientFunds)
	assert.ErrorIs(t, f.market.Bid(ctx, "rich", 999, 150), models.ErrNotFound)

	require.NoError(t, f.market.Bid(ctx, "rich", id, 150))
	got, err := f.market.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.CurrentPrice)
	assert.Equal(t, "rich", got.CurrentBidder)

	// No currency moves at bid time.
	assert.Equal(t, int64(10100), f.gold(t, "rich"))

	// The standing bid blocks a plain cancel even for an elevated caller;
	// discarding it is the moderation path.
	assert.ErrorIs(t, f.market.Cancel(ctx, "seller", id, true), models.ErrHasBids)
	require.NoError(t, f.market.ForceRemove(ctx, "moderator", id))
}

func TestBuyNowSettlesEquipmentListing(t *testing.T) {
	f := newMarketFixture(t, "seller", "bidderA", "buyerB")
	f.grantGold(t, "bidderA", 1000)
	f.grantGold(t, "buyerB", 1000)
	ctx := context.Background()

	eq, err := f.equip.Generate(ctx, "seller", models.SlotWeapon)
	require.NoError(t, err)

	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100, BuyoutPrice: 500,
	})
	require.NoError(t, err)

	require.NoError(t, f.market.Bid(ctx, "bidderA", listing.AuctionID, 150))

	sellerBefore := f.gold(t, "seller")
	buyerBefore := f.gold(t, "buyerB")
	bidderBefore := f.gold(t, "bidderA")

	sold, err := f.market.BuyNow(ctx, "buyerB", listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusSold, sold.Status)
	assert.Equal(t, int64(500), sold.CurrentPrice)

	assert.Equal(t, buyerBefore-500, f.gold(t, "buyerB"))
	assert.Equal(t, sellerBefore+500, f.gold(t, "seller"))
	// The advisory bid has no residual effect: nothing was escrowed.
	assert.Equal(t, bidderBefore, f.gold(t, "bidderA"))

	got, err := f.st.GetEquipment(ctx, eq.UID)
	require.NoError(t, err)
	assert.Equal(t, "buyerB", got.Owner)
	assert.False(t, got.Locked)

	open, err := f.market.OpenListings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestBuyNowRejections(t *testing.T) {
	f := newMarketFixture(t, "seller", "pauper")
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 1000,
	})
	require.NoError(t, err)

	_, err = f.market.BuyNow(ctx, "seller", listing.AuctionID)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	// An insufficient-funds buyer reopens the listing.
	_, err = f.market.BuyNow(ctx, "pauper", listing.AuctionID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	got, err := f.market.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusOpen, got.Status)
}

func TestConcurrentBuyNowExactlyOneWinner(t *testing.T) {
	buyers := make([]string, 10)
	for i := range buyers {
		buyers[i] = fmt.Sprintf("buyer%d", i)
	}
	f := newMarketFixture(t, append([]string{"seller"}, buyers...)...)
	ctx := context.Background()
	for _, b := range buyers {
		f.grantGold(t, b, 1000)
	}

	eq, err := f.equip.Generate(ctx, "seller", models.SlotWeapon)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100, BuyoutPrice: 500,
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, err := f.market.BuyNow(ctx, buyer, listing.AuctionID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, buyer)
			} else if errors.Is(err, models.ErrAuctionClosed) {
				losers++
			}
		}(b)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(buyers)-1, losers)

	got, err := f.st.GetEquipment(ctx, eq.UID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.Owner)
	assert.False(t, got.Locked)
	assert.Equal(t, int64(1000-500), f.gold(t, winners[0]))
	assert.Equal(t, int64(500), f.gold(t, "seller"))
}

func TestConcurrentSettlementsConserveGold(t *testing.T) {
	const listings = 100
	sellers := []string{"s0", "s1", "s2", "s3", "s4"}
	buyers := []string{"b0", "b1", "b2", "b3", "b4"}
	f := newMarketFixture(t, append(append([]string{}, sellers...), buyers...)...)
	ctx := context.Background()

	for _, b := range buyers {
		f.grantGold(t, b, 5000)
	}

	totalBefore := int64(0)
	for _, name := range append(append([]string{}, sellers...), buyers...) {
		totalBefore += f.gold(t, name)
	}

	ids := make([]int64, 0, listings)
	for i := 0; i < listings; i++ {
		seller := sellers[i%len(sellers)]
		_, err := f.st.AdjustStack(ctx, seller, "potion_small", 1)
		require.NoError(t, err)
		listing, err := f.market.Create(ctx, CreateParams{
			Seller: seller, Kind: models.ListingKindStack,
			ItemID: "potion_small", Quantity: 1,
			StartPrice: int64(10 + i%200), BuyoutPrice: int64(100 + i%300),
		})
		require.NoError(t, err)
		ids = append(ids, listing.AuctionID)
	}

	rng := rand.New(rand.NewSource(99))
	var rngMu sync.Mutex
	pick := func() string {
		rngMu.Lock()
		defer rngMu.Unlock()
		return buyers[rng.Intn(len(buyers))]
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(auctionID int64) {
				defer wg.Done()
				_, _ = f.market.BuyNow(ctx, pick(), auctionID)
			}(id)
		}
	}
	wg.Wait()

	totalAfter := int64(0)
	for _, name := range append(append([]string{}, sellers...), buyers...) {
		totalAfter += f.gold(t, name)
	}
	assert.Equal(t, totalBefore, totalAfter, "gold must be conserved across settlements")

	// Every potion is in exactly one place: a buyer inventory or unsold escrow.
	potions := 0
	for _, name := range append(append([]string{}, sellers...), buyers...) {
		stacks, err := f.st.GetInventory(ctx, name)
		require.NoError(t, err)
		for _, stack := range stacks {
			potions += stack.Quantity
		}
	}
	openCount := 0
	for _, id := range ids {
		listing, err := f.market.GetListing(ctx, id)
		require.NoError(t, err)
		if listing.Status == models.AuctionStatusOpen {
			openCount += listing.Quantity
		}
	}
	assert.Equal(t, listings, potions+openCount)
}

func TestCancelRoundTripPreservesInstance(t *testing.T) {
	f := newMarketFixture(t, "seller")
	ctx := context.Background()

	eq, err := f.equip.Generate(ctx, "seller", models.SlotBody)
	require.NoError(t, err)

	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100,
	})
	require.NoError(t, err)

	require.NoError(t, f.market.Cancel(ctx, "seller", listing.AuctionID, false))

	got, err := f.st.GetEquipment(ctx, eq.UID)
	require.NoError(t, err)
	assert.Equal(t, eq.UID, got.UID)
	assert.Equal(t, "seller", got.Owner)
	assert.Equal(t, eq.Attributes, got.Attributes)
	assert.False(t, got.Locked)

	final, err := f.market.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, final.Status)

	// Terminal states reject further marketplace operations.
	_, err = f.market.BuyNow(ctx, "seller", listing.AuctionID)
	assert.Error(t, err)
	assert.ErrorIs(t, f.market.Cancel(ctx, "seller", listing.AuctionID, false), models.ErrAuctionClosed)
}

func TestCancelPermissionsAndBids(t *testing.T) {
	f := newMarketFixture(t, "seller", "rich", "stranger")
	f.grantGold(t, "rich", 10000)
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.market.Cancel(ctx, "stranger", listing.AuctionID, false), models.ErrNotOwned)

	require.NoError(t, f.market.Bid(ctx, "rich", listing.AuctionID, 150))
	assert.ErrorIs(t, f.market.Cancel(ctx, "seller", listing.AuctionID, false), models.ErrHasBids)
}

func TestForceRemoveReturnsEscrowDespiteStandingBid(t *testing.T) {
	f := newMarketFixture(t, "seller", "rich")
	f.grantGold(t, "rich", 10000)
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 2)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 2, StartPrice: 100,
	})
	require.NoError(t, err)

	require.NoError(t, f.market.Bid(ctx, "rich", listing.AuctionID, 200))
	require.NoError(t, f.market.ForceRemove(ctx, "moderator", listing.AuctionID))

	stacks, err := f.st.GetInventory(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, 2, stacks[0].Quantity)

	// The bidder never paid, so nothing is refunded.
	assert.Equal(t, int64(10100), f.gold(t, "rich"))

	final, err := f.market.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, final.Status)
}

// ownerSwapStore reassigns an instance's owner just before the listing lock
// is taken, the footprint of a settlement completing between the ownership
// read and the lock acquire.
type ownerSwapStore struct {
	*store.Memory
	uid  string
	to   string
	once sync.Once
}

func (s *ownerSwapStore) AcquireLock(ctx context.Context, uid, reason string) error {
	if uid == s.uid {
		s.once.Do(func() {
			eq, err := s.Memory.GetEquipment(ctx, s.uid)
			if err == nil {
				eq.Owner = s.to
				_ = s.Memory.UpdateEquipment(ctx, eq)
			}
		})
	}
	return s.Memory.AcquireLock(ctx, uid, reason)
}

func TestCreateListingReverifiesOwnershipUnderLock(t *testing.T) {
	f := newMarketFixture(t, "seller", "winner")
	ctx := context.Background()

	eq, err := f.equip.Generate(ctx, "seller", models.SlotWeapon)
	require.NoError(t, err)

	st := &ownerSwapStore{Memory: f.st, uid: eq.UID, to: "winner"}
	market := NewMarketplace(st, f.ledger, f.equip, NopAudit{}, NopPower{})

	_, err = market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindEquipment,
		EquipmentUID: eq.UID, StartPrice: 100,
	})
	assert.ErrorIs(t, err, models.ErrNotOwned)

	// No listing opened and the new owner's instance is not left locked.
	open, err := f.st.OpenListings(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err := f.st.GetEquipment(ctx, eq.UID)
	require.NoError(t, err)
	assert.Equal(t, "winner", got.Owner)
	assert.False(t, got.Locked)
}

// lateBidStore lands a bid just before the settlement claim, in the window
// between the buyer's read and the status flip.
type lateBidStore struct {
	*store.Memory
	bidder string
	amount int64
	once   sync.Once
}

func (s *lateBidStore) SettleListing(ctx context.Context, auctionID int64, buyer string) (*models.AuctionListing, error) {
	s.once.Do(func() { _ = s.Memory.PlaceBid(ctx, auctionID, s.bidder, s.amount) })
	return s.Memory.SettleListing(ctx, auctionID, buyer)
}

func TestBuyNowSettlesAtRatchetedPrice(t *testing.T) {
	f := newMarketFixture(t, "seller", "buyer", "rival")
	f.grantGold(t, "buyer", 900)
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100,
	})
	require.NoError(t, err)

	st := &lateBidStore{Memory: f.st, bidder: "rival", amount: 400}
	market := NewMarketplace(st, f.ledger, f.equip, NopAudit{}, NopPower{})

	sellerBefore := f.gold(t, "seller")
	buyerBefore := f.gold(t, "buyer")

	sold, err := market.BuyNow(ctx, "buyer", listing.AuctionID)
	require.NoError(t, err)

	// The bid that landed before the claim ratcheted the settlement price;
	// the stale 100 read never wins.
	assert.Equal(t, int64(400), sold.CurrentPrice)
	assert.Equal(t, "buyer", sold.CurrentBidder)
	assert.Equal(t, buyerBefore-400, f.gold(t, "buyer"))
	assert.Equal(t, sellerBefore+400, f.gold(t, "seller"))

	final, err := f.st.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), final.CurrentPrice)
}

// escrowFailStore fails stack credits to one account, so the escrow release
// half of a settlement cannot land.
type escrowFailStore struct {
	*store.Memory
	owner string
}

func (s *escrowFailStore) AdjustStack(ctx context.Context, owner, itemID string, delta int) (int, error) {
	if owner == s.owner && delta > 0 {
		return 0, errors.New("stack write unavailable")
	}
	return s.Memory.AdjustStack(ctx, owner, itemID, delta)
}

func TestBuyNowRefundsBuyerWhenEscrowReleaseFails(t *testing.T) {
	f := newMarketFixture(t, "seller", "buyer")
	f.grantGold(t, "buyer", 1000)
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 200,
	})
	require.NoError(t, err)

	st := &escrowFailStore{Memory: f.st, owner: "buyer"}
	market := NewMarketplace(st, f.ledger, f.equip, NopAudit{}, NopPower{})

	sellerBefore := f.gold(t, "seller")
	buyerBefore := f.gold(t, "buyer")

	_, err = market.BuyNow(ctx, "buyer", listing.AuctionID)
	require.Error(t, err)

	// The buyer paid and received nothing, so the payment is unwound and
	// the listing reopens with its goods still in escrow.
	assert.Equal(t, buyerBefore, f.gold(t, "buyer"))
	assert.Equal(t, sellerBefore, f.gold(t, "seller"))

	final, err := f.st.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusOpen, final.Status)
	assert.Equal(t, int64(200), final.CurrentPrice)
	assert.Empty(t, final.CurrentBidder)

	stacks, err := f.st.GetInventory(ctx, "seller")
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

// closeBidStore lands a bid just before the cancel flip, in the window
// between the seller's read and the status transition.
type closeBidStore struct {
	*store.Memory
	bidder string
	amount int64
	once   sync.Once
}

func (s *closeBidStore) CancelListing(ctx context.Context, auctionID int64) error {
	s.once.Do(func() { _ = s.Memory.PlaceBid(ctx, auctionID, s.bidder, s.amount) })
	return s.Memory.CancelListing(ctx, auctionID)
}

func TestCancelRefusesBidLandingDuringClose(t *testing.T) {
	f := newMarketFixture(t, "seller", "rival")
	ctx := context.Background()

	_, err := f.st.AdjustStack(ctx, "seller", "potion_small", 1)
	require.NoError(t, err)
	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "seller", Kind: models.ListingKindStack,
		ItemID: "potion_small", Quantity: 1, StartPrice: 100,
	})
	require.NoError(t, err)

	st := &closeBidStore{Memory: f.st, bidder: "rival", amount: 150}
	market := NewMarketplace(st, f.ledger, f.equip, NopAudit{}, NopPower{})

	assert.ErrorIs(t, market.Cancel(ctx, "seller", listing.AuctionID, false), models.ErrHasBids)

	final, err := f.st.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusOpen, final.Status)
	assert.Equal(t, "rival", final.CurrentBidder)

	// Escrow stays with the listing.
	stacks, err := f.st.GetInventory(ctx, "seller")
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

// The worked end-to-end example: S lists E at 100/500, A bids 150, B buys at
// the buyout price.
func TestListingLifecycleScenario(t *testing.T) {
	f := newMarketFixture(t, "S", "A", "B")
	f.grantGold(t, "A", 1000)
	f.grantGold(t, "B", 1000)
	ctx := context.Background()

	e, err := f.equip.Generate(ctx, "S", models.SlotWeapon)
	require.NoError(t, err)

	listing, err := f.market.Create(ctx, CreateParams{
		Seller: "S", Kind: models.ListingKindEquipment,
		EquipmentUID: e.UID, StartPrice: 100, BuyoutPrice: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), listing.CurrentPrice)

	require.NoError(t, f.market.Bid(ctx, "A", listing.AuctionID, 150))
	mid, err := f.market.GetListing(ctx, listing.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), mid.CurrentPrice)
	assert.Equal(t, "A", mid.CurrentBidder)

	sGoldBefore := f.gold(t, "S")
	aGoldBefore := f.gold(t, "A")
	bGoldBefore := f.gold(t, "B")

	sold, err := f.market.BuyNow(ctx, "B", listing.AuctionID)
	require.NoError(t, err)

	assert.Equal(t, models.AuctionStatusSold, sold.Status)
	assert.Equal(t, bGoldBefore-500, f.gold(t, "B"))
	assert.Equal(t, sGoldBefore+500, f.gold(t, "S"))
	assert.Equal(t, aGoldBefore, f.gold(t, "A"))

	got, err := f.st.GetEquipment(ctx, e.UID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Owner)
	assert.False(t, got.Locked)
}

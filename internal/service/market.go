package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// Marketplace runs the auction listing lifecycle: create, bid, buy-now,
// cancel, force-removal. Per-listing serialization comes from the store's
// conditional updates (status compare-and-set, atomic bid), never from
// in-process locking. Bids are advisory: funds are checked, not reserved,
// and only buy-now moves currency.
type Marketplace struct {
	store  store.Store
	ledger *Ledger
	equip  *EquipmentService
	audit  AuditSink
	power  PowerObserver
	logger *zap.Logger
}

// NewMarketplace creates the marketplace engine.
func NewMarketplace(st store.Store, ledger *Ledger, equip *EquipmentService, audit AuditSink, power PowerObserver) *Marketplace {
	return &Marketplace{
		store:  st,
		ledger: ledger,
		equip:  equip,
		audit:  audit,
		power:  power,
		logger: util.GetLogger(),
	}
}

// CreateParams describes a new listing.
type CreateParams struct {
	Seller       string
	Kind         string
	ItemID       string
	EquipmentUID string
	Quantity     int
	StartPrice   int64
	BuyoutPrice  int64 // 0 == no buyout
}

// Create opens a listing and takes its goods into escrow: a stack listing
// debits the quantity from the seller's stack, an equipment listing locks the
// instance (reason=listing).
func (m *Marketplace) Create(ctx context.Context, p CreateParams) (*models.AuctionListing, error) {
	ctx, span := util.StartSpan(ctx, "Marketplace.Create")
	defer span.End()

	if p.StartPrice <= 0 {
		return nil, fmt.Errorf("start price must be positive: %w", models.ErrInvalidArgument)
	}
	if p.BuyoutPrice != 0 && p.BuyoutPrice < p.StartPrice {
		return nil, fmt.Errorf("buyout below start price: %w", models.ErrInvalidArgument)
	}
	if _, err := m.store.GetAccount(ctx, p.Seller); err != nil {
		return nil, err
	}

	switch p.Kind {
	case models.ListingKindStack:
		if p.ItemID == "" || p.Quantity <= 0 {
			return nil, fmt.Errorf("stack listing needs item and positive quantity: %w", models.ErrInvalidArgument)
		}
		if _, err := m.store.AdjustStack(ctx, p.Seller, p.ItemID, -p.Quantity); err != nil {
			return nil, err
		}
	case models.ListingKindEquipment:
		if p.EquipmentUID == "" {
			return nil, fmt.Errorf("equipment listing needs a uid: %w", models.ErrInvalidArgument)
		}
		eq, err := m.store.GetEquipment(ctx, p.EquipmentUID)
		if err != nil {
			return nil, err
		}
		if eq.Owner != p.Seller {
			return nil, fmt.Errorf("equipment %s: %w", p.EquipmentUID, models.ErrNotOwned)
		}
		if err := m.store.AcquireLock(ctx, p.EquipmentUID, models.LockReasonListing); err != nil {
			return nil, err
		}
		// Ownership can change between the read and the lock (a settlement
		// finishing in that window); only a check made under the lock holds.
		eq, err = m.store.GetEquipment(ctx, p.EquipmentUID)
		if err == nil && eq.Owner != p.Seller {
			err = fmt.Errorf("equipment %s: %w", p.EquipmentUID, models.ErrNotOwned)
		}
		if err != nil {
			if relErr := m.store.ReleaseLock(ctx, p.EquipmentUID, models.LockReasonListing); relErr != nil {
				m.logger.Error("Failed to release lock on aborted listing",
					zap.String("uid", p.EquipmentUID), zap.Error(relErr))
			}
			return nil, err
		}
		p.Quantity = 1
	default:
		return nil, fmt.Errorf("listing kind %q: %w", p.Kind, models.ErrInvalidArgument)
	}

	auctionID, err := m.store.NextAuctionID(ctx)
	if err != nil {
		m.revertEscrow(ctx, p.Seller, p.Kind, p.ItemID, p.EquipmentUID, p.Quantity)
		return nil, err
	}

	listing := &models.AuctionListing{
		AuctionID:    auctionID,
		Seller:       p.Seller,
		Kind:         p.Kind,
		ItemID:       p.ItemID,
		EquipmentUID: p.EquipmentUID,
		Quantity:     p.Quantity,
		StartPrice:   p.StartPrice,
		CurrentPrice: p.StartPrice,
		BuyoutPrice:  p.BuyoutPrice,
		Status:       models.AuctionStatusOpen,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.PutListing(ctx, listing); err != nil {
		m.revertEscrow(ctx, p.Seller, p.Kind, p.ItemID, p.EquipmentUID, p.Quantity)
		return nil, err
	}

	util.ListingsCreatedTotal.Inc()
	m.audit.EmitAudit(ctx, models.EventTypeAuctionCreated, p.Seller, "auction_create", map[string]any{
		"auction_id":  auctionID,
		"kind":        p.Kind,
		"item_id":     p.ItemID,
		"uid":         p.EquipmentUID,
		"qty":         p.Quantity,
		"start_price": p.StartPrice,
		"buyout":      p.BuyoutPrice,
	})
	return listing, nil
}

func (m *Marketplace) revertEscrow(ctx context.Context, seller, kind, itemID, uid string, qty int) {
	var err error
	switch kind {
	case models.ListingKindStack:
		_, err = m.store.AdjustStack(ctx, seller, itemID, qty)
	case models.ListingKindEquipment:
		err = m.store.ReleaseLock(ctx, uid, models.LockReasonListing)
	}
	if err != nil {
		m.logger.Error("Failed to revert listing escrow",
			zap.String("seller", seller), zap.String("item_id", itemID),
			zap.String("uid", uid), zap.Error(err))
	}
}

// Bid records an advisory price commitment on an open listing. Funds are
// checked at bid time but not reserved; no currency moves. The store-side
// conditional update keeps the price ratchet monotonic under racing bids.
func (m *Marketplace) Bid(ctx context.Context, bidder string, auctionID, amount int64) error {
	ctx, span := util.StartSpan(ctx, "Marketplace.Bid")
	defer span.End()

	listing, err := m.store.GetListing(ctx, auctionID)
	if err != nil {
		return err
	}
	if listing.Status != models.AuctionStatusOpen {
		util.BidsRejectedTotal.WithLabelValues("closed").Inc()
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrAuctionClosed)
	}
	if bidder == listing.Seller {
		util.BidsRejectedTotal.WithLabelValues("self_bid").Inc()
		return fmt.Errorf("seller cannot bid: %w", models.ErrInvalidArgument)
	}

	acct, err := m.store.GetAccount(ctx, bidder)
	if err != nil {
		return err
	}
	if acct.Gold < amount {
		util.BidsRejectedTotal.WithLabelValues("insufficient_funds").Inc()
		return fmt.Errorf("bid %d exceeds balance: %w", amount, models.ErrInsufficientFunds)
	}

	if err := m.store.PlaceBid(ctx, auctionID, bidder, amount); err != nil {
		switch {
		case errors.Is(err, models.ErrAuctionClosed):
			util.BidsRejectedTotal.WithLabelValues("closed").Inc()
		case errors.Is(err, models.ErrInvalidArgument):
			util.BidsRejectedTotal.WithLabelValues("too_low").Inc()
		}
		return err
	}

	util.BidsAcceptedTotal.Inc()
	m.audit.EmitBid(ctx, auctionID, bidder, amount)
	return nil
}

// BuyNow settles a listing immediately. The atomic claim flips open→sold and
// writes the settlement price (buyout when set, else the current price at
// claim time) in one step, so exactly one of two concurrent buyers wins, the
// loser observes AuctionClosed, and a bid landing just before the claim
// settles at its ratcheted price rather than a stale read. The buyer's debit
// inside the transfer is the authoritative funds check; a settlement that
// fails after the claim is fully unwound and the listing reopens.
func (m *Marketplace) BuyNow(ctx context.Context, buyer string, auctionID int64) (*models.AuctionListing, error) {
	ctx, span := util.StartSpan(ctx, "Marketplace.BuyNow")
	defer span.End()
	started := time.Now()

	listing, err := m.store.GetListing(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if buyer == listing.Seller {
		return nil, fmt.Errorf("seller cannot buy own listing: %w", models.ErrInvalidArgument)
	}

	prior, err := m.store.SettleListing(ctx, auctionID, buyer)
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues("closed").Inc()
		return nil, err
	}
	price := prior.CurrentPrice
	if prior.BuyoutPrice > 0 {
		price = prior.BuyoutPrice
	}

	if err := m.ledger.Transfer(ctx, buyer, prior.Seller, price); err != nil {
		m.revertSettlement(ctx, prior)
		util.SettlementsFailedTotal.WithLabelValues("transfer").Inc()
		return nil, err
	}

	if err := m.releaseEscrowTo(ctx, prior, buyer); err != nil {
		// The buyer paid but the goods never left escrow; unwind the
		// payment before reopening.
		if refundErr := m.ledger.Transfer(ctx, prior.Seller, buyer, price); refundErr != nil {
			m.logger.Error("CRITICAL: failed to refund buyer after escrow release failure",
				zap.Int64("auction_id", auctionID), zap.String("buyer", buyer),
				zap.Int64("price", price), zap.Error(refundErr))
		}
		m.revertSettlement(ctx, prior)
		util.SettlementsFailedTotal.WithLabelValues("escrow").Inc()
		return nil, err
	}

	if err := m.store.RemoveOpenIndex(ctx, auctionID); err != nil {
		m.logger.Warn("Failed to remove sold listing from open index",
			zap.Int64("auction_id", auctionID), zap.Error(err))
	}

	sold := prior
	sold.Status = models.AuctionStatusSold
	sold.CurrentPrice = price
	sold.CurrentBidder = buyer

	util.SettlementsTotal.Inc()
	util.SettlementLatency.Observe(time.Since(started).Seconds())
	m.audit.EmitSold(ctx, sold, buyer, price)
	if sold.Kind == models.ListingKindEquipment {
		m.power.PowerChanged(ctx, buyer, "settlement")
		m.power.PowerChanged(ctx, sold.Seller, "settlement")
	}
	return sold, nil
}

// revertSettlement returns a claimed listing to its pre-claim state. While
// sold the listing is unreachable to bids and other buyers, so the bid-field
// restore and the status flip cannot race a second settlement; the restore
// happens first so no bid lands against the claim-time price.
func (m *Marketplace) revertSettlement(ctx context.Context, prior *models.AuctionListing) {
	if err := m.store.UpdateListing(ctx, prior); err != nil {
		m.logger.Error("CRITICAL: failed to restore bid state on reverted settlement",
			zap.Int64("auction_id", prior.AuctionID), zap.Error(err))
	}
	if err := m.store.TransitionListing(ctx, prior.AuctionID,
		models.AuctionStatusSold, models.AuctionStatusOpen); err != nil {
		m.logger.Error("CRITICAL: failed to reopen listing after failed settlement",
			zap.Int64("auction_id", prior.AuctionID), zap.Error(err))
	}
}

// releaseEscrowTo hands the escrowed goods to the buyer. For equipment the
// owner changes before the unlock: the instance is never simultaneously
// unlocked and seller-owned, which would open a relist window.
func (m *Marketplace) releaseEscrowTo(ctx context.Context, listing *models.AuctionListing, buyer string) error {
	switch listing.Kind {
	case models.ListingKindStack:
		_, err := m.store.AdjustStack(ctx, buyer, listing.ItemID, listing.Quantity)
		return err
	case models.ListingKindEquipment:
		if err := m.equip.TransferEquipment(ctx, listing.EquipmentUID, listing.Seller, buyer); err != nil {
			return err
		}
		if err := m.store.ReleaseLock(ctx, listing.EquipmentUID, models.LockReasonListing); err != nil {
			// Ownership already moved, so the settlement stands; the stale
			// listing lock blocks the buyer until moderation clears it.
			m.logger.Error("CRITICAL: sold equipment left with a stale listing lock",
				zap.String("uid", listing.EquipmentUID), zap.Error(err))
		}
		return nil
	default:
		return fmt.Errorf("listing kind %q: %w", listing.Kind, models.ErrInvalidArgument)
	}
}

// Cancel closes a listing and returns its escrow to the seller. Only the
// seller or an elevated caller may cancel; a listing with a standing bid
// rejects with HasBids (nothing was escrowed from the bidder, but the ratchet
// is a public commitment).
func (m *Marketplace) Cancel(ctx context.Context, caller string, auctionID int64, elevated bool) error {
	ctx, span := util.StartSpan(ctx, "Marketplace.Cancel")
	defer span.End()

	listing, err := m.store.GetListing(ctx, auctionID)
	if err != nil {
		return err
	}
	if caller != listing.Seller && !elevated {
		return fmt.Errorf("auction %d: %w", auctionID, models.ErrNotOwned)
	}

	if err := m.close(ctx, listing, true); err != nil {
		return err
	}

	util.ListingsCancelledTotal.Inc()
	m.audit.EmitAudit(ctx, models.EventTypeAuctionCancelled, caller, "auction_cancel",
		map[string]any{"auction_id": auctionID})
	return nil
}

// ForceRemove is the moderation variant of Cancel: it bypasses the HasBids
// restriction. Escrow still returns to the seller regardless of any standing
// bid, because the bidder never paid.
func (m *Marketplace) ForceRemove(ctx context.Context, actor string, auctionID int64) error {
	ctx, span := util.StartSpan(ctx, "Marketplace.ForceRemove")
	defer span.End()

	listing, err := m.store.GetListing(ctx, auctionID)
	if err != nil {
		return err
	}

	if err := m.close(ctx, listing, false); err != nil {
		return err
	}

	util.ListingsCancelledTotal.Inc()
	m.audit.EmitAudit(ctx, models.EventTypeAuctionForceRemove, actor, "auction_force_remove",
		map[string]any{"auction_id": auctionID, "seller": listing.Seller, "standing_bidder": listing.CurrentBidder})
	return nil
}

// close transitions open→cancelled and returns escrow to the seller. With
// guardBids the flip refuses atomically when a bid stands, so a bid landing
// just before the cancel is never cancelled over; without it (moderation) any
// standing bid is discarded. Either way the conditional flip loses to a
// concurrent buy-now, in which case the goods already belong to the buyer and
// nothing is returned.
func (m *Marketplace) close(ctx context.Context, listing *models.AuctionListing, guardBids bool) error {
	var err error
	if guardBids {
		err = m.store.CancelListing(ctx, listing.AuctionID)
	} else {
		err = m.store.TransitionListing(ctx, listing.AuctionID,
			models.AuctionStatusOpen, models.AuctionStatusCancelled)
	}
	if err != nil {
		return err
	}

	switch listing.Kind {
	case models.ListingKindStack:
		if _, err := m.store.AdjustStack(ctx, listing.Seller, listing.ItemID, listing.Quantity); err != nil {
			m.logger.Error("CRITICAL: failed to return cancelled stack escrow",
				zap.Int64("auction_id", listing.AuctionID), zap.Error(err))
			return err
		}
	case models.ListingKindEquipment:
		if err := m.store.ReleaseLock(ctx, listing.EquipmentUID, models.LockReasonListing); err != nil {
			m.logger.Error("CRITICAL: failed to unlock cancelled equipment escrow",
				zap.Int64("auction_id", listing.AuctionID), zap.Error(err))
			return err
		}
	}

	return m.store.RemoveOpenIndex(ctx, listing.AuctionID)
}

// GetListing loads one listing.
func (m *Marketplace) GetListing(ctx context.Context, auctionID int64) (*models.AuctionListing, error) {
	return m.store.GetListing(ctx, auctionID)
}

// OpenListings returns open listings, most recent first.
func (m *Marketplace) OpenListings(ctx context.Context, limit int64) ([]models.AuctionListing, error) {
	return m.store.OpenListings(ctx, limit)
}

// AllListings returns listings in any status, newest first.
func (m *Marketplace) AllListings(ctx context.Context, limit int64) ([]models.AuctionListing, error) {
	return m.store.AllListings(ctx, limit)
}

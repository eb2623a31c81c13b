package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
	"game-economy-service/internal/util"
)

// Capped Redis streams mirrored for admin tooling, matching the on-disk
// contract of the audit sink.
const (
	ActionsStream = "stream:actions"
	BidsStream    = "stream:auction:bids"
	SoldStream    = "stream:auction:sold"

	actionsStreamMaxLen = 10000
	bidsStreamMaxLen    = 5000
	soldStreamMaxLen    = 5000
)

// AuditPublisher is the audit sink: every economic mutation goes to the Kafka
// audit topic and is mirrored into a capped Redis stream. Emission never
// fails the calling operation; publish errors are logged and dropped here.
type AuditPublisher struct {
	producer *Producer
	redis    *redisclient.Client
	logger   *zap.Logger
}

// NewAuditPublisher creates an audit publisher. The redis client may be nil
// (no stream mirror, Kafka only), which tests use.
func NewAuditPublisher(producer *Producer, redis *redisclient.Client) *AuditPublisher {
	return &AuditPublisher{
		producer: producer,
		redis:    redis,
		logger:   util.GetLogger(),
	}
}

func newBase(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EmitAudit records one audit entry {timestamp, actor, action, detail}.
func (ap *AuditPublisher) EmitAudit(ctx context.Context, eventType, actor, action string, detail map[string]any) {
	event := models.AuditEvent{
		BaseEvent: newBase(eventType),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	}

	if err := ap.producer.PublishEvent(ctx, fmt.Sprintf("audit-%s", actor), &event); err != nil {
		ap.logger.Error("Failed to publish audit event",
			zap.String("action", action), zap.Error(err))
	}

	ap.mirror(ctx, ActionsStream, actionsStreamMaxLen, map[string]interface{}{
		"ts":     event.Timestamp.Format(time.RFC3339Nano),
		"user":   actor,
		"action": action,
		"detail": marshalDetail(detail),
	})
}

// EmitBid records an accepted bid.
func (ap *AuditPublisher) EmitBid(ctx context.Context, auctionID int64, bidder string, amount int64) {
	event := models.BidEvent{
		BaseEvent: newBase(models.EventTypeAuctionBid),
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    amount,
	}

	if err := ap.producer.PublishEvent(ctx, fmt.Sprintf("auction-%d", auctionID), &event); err != nil {
		ap.logger.Error("Failed to publish bid event",
			zap.Int64("auction_id", auctionID), zap.Error(err))
	}

	ap.mirror(ctx, BidsStream, bidsStreamMaxLen, map[string]interface{}{
		"ts":         event.Timestamp.Format(time.RFC3339Nano),
		"auction_id": fmt.Sprintf("%d", auctionID),
		"bidder":     bidder,
		"amount":     fmt.Sprintf("%d", amount),
	})
}

// EmitSold records a completed settlement.
func (ap *AuditPublisher) EmitSold(ctx context.Context, listing *models.AuctionListing, buyer string, price int64) {
	event := models.SoldEvent{
		BaseEvent:    newBase(models.EventTypeAuctionSold),
		AuctionID:    listing.AuctionID,
		Seller:       listing.Seller,
		Buyer:        buyer,
		Kind:         listing.Kind,
		ItemID:       listing.ItemID,
		EquipmentUID: listing.EquipmentUID,
		Quantity:     listing.Quantity,
		Price:        price,
	}

	if err := ap.producer.PublishEvent(ctx, fmt.Sprintf("auction-%d", listing.AuctionID), &event); err != nil {
		ap.logger.Error("Failed to publish sold event",
			zap.Int64("auction_id", listing.AuctionID), zap.Error(err))
	}

	ap.mirror(ctx, SoldStream, soldStreamMaxLen, map[string]interface{}{
		"ts":         event.Timestamp.Format(time.RFC3339Nano),
		"auction_id": fmt.Sprintf("%d", listing.AuctionID),
		"seller":     listing.Seller,
		"buyer":      buyer,
		"item_id":    listing.ItemID,
		"qty":        fmt.Sprintf("%d", listing.Quantity),
		"price":      fmt.Sprintf("%d", price),
	})
}

func (ap *AuditPublisher) mirror(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) {
	if ap.redis == nil {
		return
	}
	if err := ap.redis.AppendStream(ctx, stream, maxLen, values); err != nil {
		ap.logger.Error("Failed to mirror audit entry to stream",
			zap.String("stream", stream), zap.Error(err))
	}
}

func marshalDetail(detail map[string]any) string {
	if detail == nil {
		return ""
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return ""
	}
	return string(raw)
}

// PowerPublisher publishes PowerChanged events to the power topic; the power
// worker consumes them to recompute combat power and republish rank.
type PowerPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewPowerPublisher creates a power event publisher.
func NewPowerPublisher(producer *Producer) *PowerPublisher {
	return &PowerPublisher{producer: producer, logger: util.GetLogger()}
}

// PowerChanged publishes a recompute trigger for one account.
func (pp *PowerPublisher) PowerChanged(ctx context.Context, username, cause string) {
	event := models.PowerChangedEvent{
		BaseEvent: newBase(models.EventTypePowerChanged),
		Username:  username,
		Cause:     cause,
	}

	if err := pp.producer.PublishEvent(ctx, fmt.Sprintf("power-%s", username), &event); err != nil {
		pp.logger.Error("Failed to publish power change",
			zap.String("username", username), zap.Error(err))
	}
}

package models

import "time"

// Event types emitted by the economic core. Every mutating operation in the
// ledger, equipment store, enhancement engine and marketplace produces exactly
// one of these.
const (
	EventTypeAccountCreated     = "ACCOUNT_CREATED"
	EventTypeGoldCredited       = "GOLD_CREDITED"
	EventTypeGoldDebited        = "GOLD_DEBITED"
	EventTypeTransferSettled    = "TRANSFER_SETTLED"
	EventTypeTransferPending    = "TRANSFER_PENDING"
	EventTypeTransferReconciled = "TRANSFER_RECONCILED"
	EventTypeShopPurchase       = "SHOP_PURCHASE"
	EventTypeStackAdjusted      = "STACK_ADJUSTED"
	EventTypeEquipmentGenerated = "EQUIPMENT_GENERATED"
	EventTypeEquipmentEquipped  = "EQUIPMENT_EQUIPPED"
	EventTypeEquipmentUnequip   = "EQUIPMENT_UNEQUIPPED"
	EventTypeEquipmentDeleted   = "EQUIPMENT_DELETED"
	EventTypeEnhanceSuccess     = "ENHANCE_SUCCESS"
	EventTypeEnhanceFailure     = "ENHANCE_FAILURE"
	EventTypeEnhanceProtected   = "ENHANCE_PROTECTED"
	EventTypeEnhanceExplosion   = "ENHANCE_EXPLOSION"
	EventTypeAuctionCreated     = "AUCTION_CREATED"
	EventTypeAuctionBid         = "AUCTION_BID"
	EventTypeAuctionSold        = "AUCTION_SOLD"
	EventTypeAuctionCancelled   = "AUCTION_CANCELLED"
	EventTypeAuctionForceRemove = "AUCTION_FORCE_REMOVED"
	EventTypeAccountBanned      = "ACCOUNT_BANNED"
	EventTypeAccountUnbanned    = "ACCOUNT_UNBANNED"
	EventTypePowerChanged       = "POWER_CHANGED"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is the structured record appended to the audit sink for every
// economic mutation.
type AuditEvent struct {
	BaseEvent
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	Detail map[string]any `json:"detail,omitempty"`
}

// BidEvent records an accepted bid, mirrored to the bid stream.
type BidEvent struct {
	BaseEvent
	AuctionID int64  `json:"auction_id"`
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
}

// SoldEvent records a completed settlement, mirrored to the sold stream.
type SoldEvent struct {
	BaseEvent
	AuctionID    int64  `json:"auction_id"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Kind         string `json:"kind"`
	ItemID       string `json:"item_id,omitempty"`
	EquipmentUID string `json:"equipment_uid,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
}

// PowerChangedEvent is published whenever an operation changes an account's
// derived combat power; the power worker recomputes and republishes rank.
type PowerChangedEvent struct {
	BaseEvent
	Username string `json:"username"`
	Cause    string `json:"cause"`
}

package models

import "time"

// Account holds a player's gold balance. Mutated only through ledger
// credit/debit operations, never by direct field overwrite.
type Account struct {
	Username  string    `json:"username"`
	Gold      int64     `json:"gold"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

// InventoryStack is a quantity of a stackable item owned by an account.
// A stack at quantity zero does not exist.
type InventoryStack struct {
	Owner    string `json:"owner"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Equipment slots.
const (
	SlotWeapon = "weapon"
	SlotHead   = "head"
	SlotBody   = "body"
	SlotHands  = "hands"
	SlotFeet   = "feet"
)

// EquipSlots lists the valid equipment slots.
var EquipSlots = []string{SlotWeapon, SlotHead, SlotBody, SlotHands, SlotFeet}

// ValidSlot reports whether slot names a real equipment slot.
func ValidSlot(slot string) bool {
	for _, s := range EquipSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// Lock reasons for an equipment instance. The two are mutually exclusive:
// an equipped instance cannot be listed and a listed instance cannot be
// equipped.
const (
	LockReasonEquip   = "equip"
	LockReasonListing = "listing"
)

// Attributes are the six combat scalars carried by an equipment instance.
type Attributes struct {
	Atk     int `json:"atk"`
	Def     int `json:"def"`
	HP      int `json:"hp"`
	Spd     int `json:"spd"`
	Crit    int `json:"crit"`
	CritDmg int `json:"crit_dmg"`
}

// Sum returns the combined attribute score, used for combat power.
func (a Attributes) Sum() int {
	return a.Atk + a.Def + a.HP + a.Spd + a.Crit + a.CritDmg
}

// EquipmentInstance is a unique piece of equipment. Created only by
// generation, destroyed only by explosion or administrative deletion.
type EquipmentInstance struct {
	UID              string     `json:"uid"`
	Owner            string     `json:"owner"`
	EquipType        string     `json:"equip_type"`
	Rarity           string     `json:"rarity"`
	EnhancementLevel int        `json:"enhancement_level"`
	Attributes       Attributes `json:"attributes"`
	Locked           bool       `json:"locked"`
	LockReason       string     `json:"lock_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Auction listing kinds.
const (
	ListingKindStack     = "stack_item"
	ListingKindEquipment = "equipment"
)

// Auction listing statuses. open is the only live state; sold and cancelled
// are terminal.
const (
	AuctionStatusOpen      = "open"
	AuctionStatusSold      = "sold"
	AuctionStatusCancelled = "cancelled"
)

// AuctionListing is one marketplace listing. While open it holds its goods in
// escrow: a debited stack quantity or a locked equipment instance.
type AuctionListing struct {
	AuctionID     int64     `json:"auction_id"`
	Seller        string    `json:"seller"`
	Kind          string    `json:"kind"`
	ItemID        string    `json:"item_id,omitempty"`
	EquipmentUID  string    `json:"equipment_uid,omitempty"`
	Quantity      int       `json:"quantity"`
	StartPrice    int64     `json:"start_price"`
	CurrentPrice  int64     `json:"current_price"`
	CurrentBidder string    `json:"current_bidder,omitempty"`
	BuyoutPrice   int64     `json:"buyout_price,omitempty"` // 0 == not set
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// PendingCredit is an unresolved half of a transfer: gold already debited but
// the paired credit not yet confirmed. Held in the reconciliation queue until
// the credit lands.
type PendingCredit struct {
	TransferID string    `json:"transfer_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-economy-service/internal/gamedata"
	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// EquipmentService owns inventory stacks, equipment instances, equip slot
// assignments and the shop. Lock coherence (an instance is locked exactly
// while equipped or listed, never both) is enforced by the store's
// conditional lock acquire.
type EquipmentService struct {
	store  store.Store
	ledger *Ledger
	audit  AuditSink
	power  PowerObserver
	logger *zap.Logger
	rng    *lockedRand
}

// NewEquipmentService creates the item and equipment store. A nil src seeds
// the generator from the clock; tests inject a deterministic source.
func NewEquipmentService(st store.Store, ledger *Ledger, audit AuditSink, power PowerObserver, src rand.Source) *EquipmentService {
	return &EquipmentService{
		store:  st,
		ledger: ledger,
		audit:  audit,
		power:  power,
		logger: util.GetLogger(),
		rng:    newLockedRand(src),
	}
}

// Generate rolls a new equipment instance for owner: uniform rarity, six
// attributes rolled uniformly and scaled by the rarity multiplier, floored.
func (es *EquipmentService) Generate(ctx context.Context, owner, equipType string) (*models.EquipmentInstance, error) {
	ctx, span := util.StartSpan(ctx, "EquipmentService.Generate")
	defer span.End()

	if !models.ValidSlot(equipType) {
		return nil, fmt.Errorf("equip type %q: %w", equipType, models.ErrInvalidArgument)
	}
	if _, err := es.store.GetAccount(ctx, owner); err != nil {
		return nil, err
	}

	rarity := gamedata.Rarities[es.rng.Intn(len(gamedata.Rarities))]
	mult := gamedata.RarityMultipliers[rarity]

	eq := &models.EquipmentInstance{
		UID:       uuid.New().String(),
		Owner:     owner,
		EquipType: equipType,
		Rarity:    rarity,
		Attributes: models.Attributes{
			Atk:     es.rollAttribute(mult),
			Def:     es.rollAttribute(mult),
			HP:      es.rollAttribute(mult),
			Spd:     es.rollAttribute(mult),
			Crit:    es.rollAttribute(mult),
			CritDmg: es.rollAttribute(mult),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := es.store.PutEquipment(ctx, eq); err != nil {
		return nil, fmt.Errorf("failed to persist equipment: %w", err)
	}

	util.EquipmentGeneratedTotal.WithLabelValues(rarity).Inc()
	es.audit.EmitAudit(ctx, models.EventTypeEquipmentGenerated, owner, "equipment_generate",
		map[string]any{"uid": eq.UID, "equip_type": equipType, "rarity": rarity})
	return eq, nil
}

func (es *EquipmentService) rollAttribute(mult float64) int {
	span := gamedata.AttributeRollMax - gamedata.AttributeRollMin + 1
	base := gamedata.AttributeRollMin + es.rng.Intn(span)
	return int(math.Floor(float64(base) * mult))
}

// GetEquipment loads one instance.
func (es *EquipmentService) GetEquipment(ctx context.Context, uid string) (*models.EquipmentInstance, error) {
	return es.store.GetEquipment(ctx, uid)
}

// GetInventory returns the owner's stacks.
func (es *EquipmentService) GetInventory(ctx context.Context, owner string) ([]models.InventoryStack, error) {
	return es.store.GetInventory(ctx, owner)
}

// GetSlots returns the owner's equip slot assignments.
func (es *EquipmentService) GetSlots(ctx context.Context, owner string) (map[string]string, error) {
	return es.store.GetSlots(ctx, owner)
}

// Equip locks an instance (reason=equip) and assigns it to a slot, evicting
// any previous occupant to unlocked/unequipped. Fails when the instance is
// not owned by owner, is already locked, or the slot is invalid.
func (es *EquipmentService) Equip(ctx context.Context, owner, uid, slot string) error {
	ctx, span := util.StartSpan(ctx, "EquipmentService.Equip")
	defer span.End()

	if !models.ValidSlot(slot) {
		return fmt.Errorf("slot %q: %w", slot, models.ErrInvalidArgument)
	}

	eq, err := es.store.GetEquipment(ctx, uid)
	if err != nil {
		return err
	}
	if eq.Owner != owner {
		return fmt.Errorf("equipment %s: %w", uid, models.ErrNotOwned)
	}

	// The conditional acquire serializes racing equip/list attempts: only
	// one can hold the lock.
	if err := es.store.AcquireLock(ctx, uid, models.LockReasonEquip); err != nil {
		return err
	}

	// Ownership can change between the read and the lock (a settlement
	// finishing in that window); only a check made under the lock holds.
	eq, err = es.store.GetEquipment(ctx, uid)
	if err == nil && eq.Owner != owner {
		err = fmt.Errorf("equipment %s: %w", uid, models.ErrNotOwned)
	}
	if err != nil {
		es.releaseOnAbort(ctx, uid)
		return err
	}

	slots, err := es.store.GetSlots(ctx, owner)
	if err != nil {
		es.releaseOnAbort(ctx, uid)
		return err
	}
	prev, hadPrev := slots[slot]

	if err := es.store.SetSlot(ctx, owner, slot, uid); err != nil {
		es.releaseOnAbort(ctx, uid)
		return err
	}

	if hadPrev && prev != uid {
		if err := es.store.ReleaseLock(ctx, prev, models.LockReasonEquip); err != nil {
			es.logger.Warn("Failed to unlock evicted slot occupant",
				zap.String("uid", prev), zap.Error(err))
		}
	}

	es.audit.EmitAudit(ctx, models.EventTypeEquipmentEquipped, owner, "equip",
		map[string]any{"uid": uid, "slot": slot})
	es.power.PowerChanged(ctx, owner, "equip")
	return nil
}

// releaseOnAbort unwinds a lock taken by an equip attempt that failed before
// the slot assignment landed, so the instance is never left locked for equip
// while assigned to no slot.
func (es *EquipmentService) releaseOnAbort(ctx context.Context, uid string) {
	if err := es.store.ReleaseLock(ctx, uid, models.LockReasonEquip); err != nil {
		es.logger.Error("Failed to release lock on aborted equip",
			zap.String("uid", uid), zap.Error(err))
	}
}

// Unequip clears a slot and unlocks its occupant.
func (es *EquipmentService) Unequip(ctx context.Context, owner, slot string) error {
	ctx, span := util.StartSpan(ctx, "EquipmentService.Unequip")
	defer span.End()

	if !models.ValidSlot(slot) {
		return fmt.Errorf("slot %q: %w", slot, models.ErrInvalidArgument)
	}

	slots, err := es.store.GetSlots(ctx, owner)
	if err != nil {
		return err
	}
	uid, ok := slots[slot]
	if !ok {
		return fmt.Errorf("slot %s empty: %w", slot, models.ErrNotFound)
	}

	if err := es.store.ReleaseLock(ctx, uid, models.LockReasonEquip); err != nil {
		return err
	}
	if err := es.store.ClearSlot(ctx, owner, slot); err != nil {
		return err
	}

	es.audit.EmitAudit(ctx, models.EventTypeEquipmentUnequip, owner, "unequip",
		map[string]any{"uid": uid, "slot": slot})
	es.power.PowerChanged(ctx, owner, "unequip")
	return nil
}

// TransferEquipment reassigns ownership of an instance. Fails with NotOwned
// on owner mismatch or when the instance is locked for equip; an instance
// locked for listing transfers freely (the settlement path).
func (es *EquipmentService) TransferEquipment(ctx context.Context, uid, fromOwner, toOwner string) error {
	ctx, span := util.StartSpan(ctx, "EquipmentService.TransferEquipment")
	defer span.End()

	eq, err := es.store.GetEquipment(ctx, uid)
	if err != nil {
		return err
	}
	if eq.Owner != fromOwner {
		return fmt.Errorf("equipment %s owned by %s: %w", uid, eq.Owner, models.ErrNotOwned)
	}
	if eq.Locked && eq.LockReason == models.LockReasonEquip {
		return fmt.Errorf("equipment %s equipped: %w", uid, models.ErrNotOwned)
	}

	eq.Owner = toOwner
	return es.store.UpdateEquipment(ctx, eq)
}

// AdjustStack applies a signed quantity delta to an inventory stack.
func (es *EquipmentService) AdjustStack(ctx context.Context, actor, owner, itemID string, delta int) (int, error) {
	ctx, span := util.StartSpan(ctx, "EquipmentService.AdjustStack")
	defer span.End()

	if delta == 0 {
		return 0, fmt.Errorf("zero delta: %w", models.ErrInvalidArgument)
	}

	qty, err := es.store.AdjustStack(ctx, owner, itemID, delta)
	if err != nil {
		return 0, err
	}

	es.audit.EmitAudit(ctx, models.EventTypeStackAdjusted, actor, "stack_adjust",
		map[string]any{"owner": owner, "item_id": itemID, "delta": delta, "new_qty": qty})
	return qty, nil
}

// BuyItem purchases qty of a catalog item: ledger debit, then stack credit.
func (es *EquipmentService) BuyItem(ctx context.Context, username, itemID string, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "EquipmentService.BuyItem")
	defer span.End()

	if qty <= 0 {
		return 0, fmt.Errorf("quantity must be positive: %w", models.ErrInvalidArgument)
	}
	item, ok := gamedata.Catalog[itemID]
	if !ok {
		return 0, fmt.Errorf("item %s: %w", itemID, models.ErrNotFound)
	}

	// Advisory cap check; the stack adjust itself only guards the floor.
	held := 0
	if stacks, err := es.store.GetInventory(ctx, username); err == nil {
		for _, stack := range stacks {
			if stack.ItemID == itemID {
				held = stack.Quantity
			}
		}
	}
	if item.MaxStack > 0 && held+qty > item.MaxStack {
		return 0, fmt.Errorf("stack cap %d for %s: %w", item.MaxStack, itemID, models.ErrInvalidArgument)
	}

	cost := item.Price * int64(qty)
	if _, err := es.ledger.Debit(ctx, username, username, cost); err != nil {
		return 0, err
	}

	newQty, err := es.store.AdjustStack(ctx, username, itemID, qty)
	if err != nil {
		// The debit landed but the stack credit did not; refund rather
		// than strand the gold.
		if _, refundErr := es.ledger.Credit(ctx, username, username, cost); refundErr != nil {
			es.logger.Error("CRITICAL: failed to refund shop purchase",
				zap.String("username", username), zap.Int64("cost", cost), zap.Error(refundErr))
		}
		return 0, err
	}

	es.audit.EmitAudit(ctx, models.EventTypeShopPurchase, username, "shop_buy",
		map[string]any{"item_id": itemID, "qty": qty, "cost": cost})
	return newQty, nil
}

// DeleteEquipment destroys an instance. Idempotent: deleting an absent uid is
// a no-op. Administrative path; the enhancement engine explodes instances
// through its own flow.
func (es *EquipmentService) DeleteEquipment(ctx context.Context, actor, uid string) error {
	ctx, span := util.StartSpan(ctx, "EquipmentService.DeleteEquipment")
	defer span.End()

	if err := es.store.DeleteEquipment(ctx, uid); err != nil {
		return err
	}

	es.audit.EmitAudit(ctx, models.EventTypeEquipmentDeleted, actor, "equipment_delete",
		map[string]any{"uid": uid})
	return nil
}

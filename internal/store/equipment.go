package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
)

func equipmentFields(eq *models.EquipmentInstance) map[string]interface{} {
	locked := "0"
	if eq.Locked {
		locked = "1"
	}
	return map[string]interface{}{
		"uid":         eq.UID,
		"owner":       eq.Owner,
		"equip_type":  eq.EquipType,
		"rarity":      eq.Rarity,
		"level":       strconv.Itoa(eq.EnhancementLevel),
		"atk":         strconv.Itoa(eq.Attributes.Atk),
		"def":         strconv.Itoa(eq.Attributes.Def),
		"hp":          strconv.Itoa(eq.Attributes.HP),
		"spd":         strconv.Itoa(eq.Attributes.Spd),
		"crit":        strconv.Itoa(eq.Attributes.Crit),
		"crit_dmg":    strconv.Itoa(eq.Attributes.CritDmg),
		"locked":      locked,
		"lock_reason": eq.LockReason,
		"created_at":  eq.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// PutEquipment persists a freshly generated instance.
func (s *Redis) PutEquipment(ctx context.Context, eq *models.EquipmentInstance) error {
	return s.client.GetClient().HSet(ctx, equipmentKey(eq.UID), equipmentFields(eq)).Err()
}

// GetEquipment loads an instance by uid.
func (s *Redis) GetEquipment(ctx context.Context, uid string) (*models.EquipmentInstance, error) {
	fields, err := s.client.GetClient().HGetAll(ctx, equipmentKey(uid)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	}

	atoi := func(k string) int {
		v, _ := strconv.Atoi(fields[k])
		return v
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &models.EquipmentInstance{
		UID:              fields["uid"],
		Owner:            fields["owner"],
		EquipType:        fields["equip_type"],
		Rarity:           fields["rarity"],
		EnhancementLevel: atoi("level"),
		Attributes: models.Attributes{
			Atk:     atoi("atk"),
			Def:     atoi("def"),
			HP:      atoi("hp"),
			Spd:     atoi("spd"),
			Crit:    atoi("crit"),
			CritDmg: atoi("crit_dmg"),
		},
		Locked:     fields["locked"] == "1",
		LockReason: fields["lock_reason"],
		CreatedAt:  createdAt,
	}, nil
}

// UpdateEquipment rewrites the mutable fields of an existing instance
// (owner, level, attributes). Lock state is owned by the lock scripts and is
// not touched here.
func (s *Redis) UpdateEquipment(ctx context.Context, eq *models.EquipmentInstance) error {
	rdb := s.client.GetClient()
	exists, err := rdb.Exists(ctx, equipmentKey(eq.UID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("equipment %s: %w", eq.UID, models.ErrNotFound)
	}
	return rdb.HSet(ctx, equipmentKey(eq.UID), map[string]interface{}{
		"owner":    eq.Owner,
		"level":    strconv.Itoa(eq.EnhancementLevel),
		"atk":      strconv.Itoa(eq.Attributes.Atk),
		"def":      strconv.Itoa(eq.Attributes.Def),
		"hp":       strconv.Itoa(eq.Attributes.HP),
		"spd":      strconv.Itoa(eq.Attributes.Spd),
		"crit":     strconv.Itoa(eq.Attributes.Crit),
		"crit_dmg": strconv.Itoa(eq.Attributes.CritDmg),
	}).Err()
}

// DeleteEquipment removes an instance. Idempotent: deleting an absent uid is
// a no-op.
func (s *Redis) DeleteEquipment(ctx context.Context, uid string) error {
	return s.client.GetClient().Del(ctx, equipmentKey(uid)).Err()
}

// AcquireLock sets the lock flag on an instance via conditional script; two
// racing lockers cannot both succeed.
func (s *Redis) AcquireLock(ctx context.Context, uid, reason string) error {
	res, err := s.client.AcquireItemLock(ctx, equipmentKey(uid), reason)
	if err != nil {
		return err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return fmt.Errorf("equipment %s: %w", uid, models.ErrAlreadyLocked)
	}
	return nil
}

// ReleaseLock clears the lock flag when held for the stated reason.
func (s *Redis) ReleaseLock(ctx context.Context, uid, reason string) error {
	res, err := s.client.ReleaseItemLock(ctx, equipmentKey(uid), reason)
	if err != nil {
		return err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return fmt.Errorf("equipment %s: %w", uid, models.ErrNotFound)
	case redisclient.ScriptRejected:
		return fmt.Errorf("equipment %s (%s): %w", uid, reason, models.ErrNotLocked)
	}
	return nil
}

// GetSlots returns the owner's slot assignment map (slot name -> uid).
func (s *Redis) GetSlots(ctx context.Context, owner string) (map[string]string, error) {
	return s.client.GetClient().HGetAll(ctx, slotsKey(owner)).Result()
}

// SetSlot records the uid occupying a slot.
func (s *Redis) SetSlot(ctx context.Context, owner, slot, uid string) error {
	return s.client.GetClient().HSet(ctx, slotsKey(owner), slot, uid).Err()
}

// ClearSlot empties a slot.
func (s *Redis) ClearSlot(ctx context.Context, owner, slot string) error {
	return s.client.GetClient().HDel(ctx, slotsKey(owner), slot).Err()
}

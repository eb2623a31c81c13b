package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
)

// GetInventory returns the owner's stacks, sorted by item id for stable
// output. Absent stacks never appear: quantity zero deletes the field.
func (s *Redis) GetInventory(ctx context.Context, owner string) ([]models.InventoryStack, error) {
	fields, err := s.client.GetClient().HGetAll(ctx, inventoryKey(owner)).Result()
	if err != nil {
		return nil, err
	}

	stacks := make([]models.InventoryStack, 0, len(fields))
	for itemID, raw := range fields {
		qty, _ := strconv.Atoi(raw)
		if qty <= 0 {
			continue
		}
		stacks = append(stacks, models.InventoryStack{Owner: owner, ItemID: itemID, Quantity: qty})
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].ItemID < stacks[j].ItemID })
	return stacks, nil
}

// AdjustStack applies a delta to a stack as one atomic conditional update.
// A delta that would take the quantity negative fails with InsufficientStock
// and leaves the stack unchanged.
func (s *Redis) AdjustStack(ctx context.Context, owner, itemID string, delta int) (int, error) {
	res, err := s.client.AdjustStack(ctx, inventoryKey(owner), itemID, delta)
	if err != nil {
		return 0, err
	}
	if res == redisclient.ScriptRefused {
		return 0, fmt.Errorf("stack %s/%s: %w", owner, itemID, models.ErrInsufficientStock)
	}
	return int(res), nil
}

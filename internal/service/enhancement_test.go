package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-economy-service/internal/gamedata"
	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
)

func putEquipmentAtLevel(t *testing.T, st *store.Memory, uid string, level int) {
	t.Helper()
	require.NoError(t, st.PutEquipment(context.Background(), &models.EquipmentInstance{
		UID:              uid,
		Owner:            "alice",
		EquipType:        models.SlotWeapon,
		Rarity:           "white",
		EnhancementLevel: level,
		Attributes:       models.Attributes{Atk: 20, Def: 20, HP: 20, Spd: 20, Crit: 20, CritDmg: 20},
	}))
}

func TestAttemptRejectsAtMaxLevel(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.0))
	ctx := context.Background()

	putEquipmentAtLevel(t, st, "e1", gamedata.MaxEnhancementLevel)
	_, err := ee.Attempt(ctx, "alice", "e1", false)
	assert.ErrorIs(t, err, models.ErrAtMaxLevel)
}

func TestAttemptAccessRules(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.0))
	ctx := context.Background()

	putEquipmentAtLevel(t, st, "e1", 5)

	_, err := ee.Attempt(ctx, "bob", "e1", false)
	assert.ErrorIs(t, err, models.ErrNotOwned)
	_, err = ee.Attempt(ctx, "alice", "ghost", false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, st.AcquireLock(ctx, "e1", models.LockReasonListing))
	_, err = ee.Attempt(ctx, "alice", "e1", false)
	assert.ErrorIs(t, err, models.ErrAlreadyLocked)

	// Equipped instances can be enhanced.
	require.NoError(t, st.ReleaseLock(ctx, "e1", models.LockReasonListing))
	require.NoError(t, st.AcquireLock(ctx, "e1", models.LockReasonEquip))
	result, err := ee.Attempt(ctx, "alice", "e1", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
}

func TestAttemptSuccessGrowsAttributes(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.0))
	ctx := context.Background()

	putEquipmentAtLevel(t, st, "e1", 4)
	result, err := ee.Attempt(ctx, "alice", "e1", false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 4, result.PreLevel)
	assert.Equal(t, 5, result.PostLevel)
	assert.False(t, result.TokenConsumed)

	got, err := st.GetEquipment(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.EnhancementLevel)
	// Growth factor floor is 1.05: floor(20*1.05) = 21.
	assert.Equal(t, 21, got.Attributes.Atk)
	assert.Equal(t, 21, got.Attributes.CritDmg)
}

func TestFailureSeverityBands(t *testing.T) {
	tests := []struct {
		level     int
		wantLevel int
	}{
		{0, 0},   // no change band
		{3, 3},   // no change band
		{6, 5},   // -1
		{10, 9},  // -1
		{11, 9},  // -2
		{15, 13}, // -2
		{16, 0},  // reset
		{18, 0},  // reset
	}

	for _, tt := range tests {
		st := store.NewMemory()
		ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
		ctx := context.Background()

		putEquipmentAtLevel(t, st, "e1", tt.level)
		result, err := ee.Attempt(ctx, "alice", "e1", false)
		require.NoError(t, err, "level %d", tt.level)

		assert.Equal(t, OutcomeFailure, result.Outcome, "level %d", tt.level)
		assert.Equal(t, tt.level, result.PreLevel)
		assert.Equal(t, tt.wantLevel, result.PostLevel, "level %d", tt.level)

		got, err := st.GetEquipment(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, tt.wantLevel, got.EnhancementLevel)
		// Failure never touches attributes.
		assert.Equal(t, 20, got.Attributes.Atk)
	}
}

func TestExplosionDestroysInstance(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
	ctx := context.Background()

	putEquipmentAtLevel(t, st, "e1", 19)
	result, err := ee.Attempt(ctx, "alice", "e1", false)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDestroyed, result.Outcome)
	assert.Equal(t, 19, result.PreLevel)

	_, err = st.GetEquipment(ctx, "e1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExplosionClearsEquipSlot(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
	ctx := context.Background()

	putEquipmentAtLevel(t, st, "e1", 19)
	require.NoError(t, st.AcquireLock(ctx, "e1", models.LockReasonEquip))
	require.NoError(t, st.SetSlot(ctx, "alice", models.SlotWeapon, "e1"))

	result, err := ee.Attempt(ctx, "alice", "e1", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDestroyed, result.Outcome)

	slots, err := st.GetSlots(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestProtectionTokenDowngradesSevereFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("reset downgraded", func(t *testing.T) {
		st := store.NewMemory()
		ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
		putEquipmentAtLevel(t, st, "e1", 17)
		_, err := st.AdjustStack(ctx, "alice", gamedata.ProtectionItemID, 1)
		require.NoError(t, err)

		result, err := ee.Attempt(ctx, "alice", "e1", true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProtected, result.Outcome)
		assert.True(t, result.TokenConsumed)
		assert.Equal(t, 16, result.PostLevel)

		stacks, err := st.GetInventory(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, stacks) // token consumed, stack collapsed
	})

	t.Run("explosion downgraded", func(t *testing.T) {
		st := store.NewMemory()
		ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
		putEquipmentAtLevel(t, st, "e1", 19)
		_, err := st.AdjustStack(ctx, "alice", gamedata.ProtectionItemID, 1)
		require.NoError(t, err)

		result, err := ee.Attempt(ctx, "alice", "e1", true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProtected, result.Outcome)
		assert.True(t, result.TokenConsumed)
		assert.Equal(t, 18, result.PostLevel)

		_, err = st.GetEquipment(ctx, "e1")
		assert.NoError(t, err) // instance survives
	})

	t.Run("no effect below severe band", func(t *testing.T) {
		st := store.NewMemory()
		ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
		putEquipmentAtLevel(t, st, "e1", 13)
		_, err := st.AdjustStack(ctx, "alice", gamedata.ProtectionItemID, 1)
		require.NoError(t, err)

		result, err := ee.Attempt(ctx, "alice", "e1", true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailure, result.Outcome)
		assert.False(t, result.TokenConsumed)
		assert.Equal(t, 11, result.PostLevel)

		stacks, err := st.GetInventory(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, stacks, 1)
		assert.Equal(t, 1, stacks[0].Quantity) // token untouched
	})

	t.Run("no token held proceeds unprotected", func(t *testing.T) {
		st := store.NewMemory()
		ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, fixedSource(0.99))
		putEquipmentAtLevel(t, st, "e1", 19)

		result, err := ee.Attempt(ctx, "alice", "e1", true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDestroyed, result.Outcome)
		assert.False(t, result.TokenConsumed)
	})
}

func TestExplosionProportionAtLevel19(t *testing.T) {
	st := store.NewMemory()
	ee := NewEnhancementEngine(st, NopAudit{}, NopPower{}, rand.NewSource(42))
	ctx := context.Background()

	const runs = 1000
	destroyed := 0
	for i := 0; i < runs; i++ {
		putEquipmentAtLevel(t, st, "e1", 19)
		result, err := ee.Attempt(ctx, "alice", "e1", false)
		require.NoError(t, err)
		if result.Outcome == OutcomeDestroyed {
			destroyed++
		}
	}

	// Failure probability at level 19 is 0.90; allow ~4 standard deviations.
	assert.Greater(t, destroyed, 860)
	assert.Less(t, destroyed, 940)
}

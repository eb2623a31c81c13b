package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"game-economy-service/internal/gamedata"
	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// Enhancement outcomes. Destroyed is terminal: the instance no longer exists
// and callers must not touch the uid again.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeProtected = "protected"
	OutcomeDestroyed = "destroyed"
)

// EnhanceResult describes one enhancement attempt.
type EnhanceResult struct {
	UID           string             `json:"uid"`
	Outcome       string             `json:"outcome"`
	PreLevel      int                `json:"pre_level"`
	PostLevel     int                `json:"post_level"`
	TokenConsumed bool               `json:"token_consumed"`
	Attributes    *models.Attributes `json:"attributes,omitempty"`
}

// EnhancementEngine advances and regresses equipment enhancement levels. The
// success and severity tables live in gamedata; all randomness flows through
// one injectable source.
type EnhancementEngine struct {
	store  store.Store
	audit  AuditSink
	power  PowerObserver
	logger *zap.Logger
	rng    *lockedRand
}

// NewEnhancementEngine creates the enhancement engine. A nil src seeds from
// the clock.
func NewEnhancementEngine(st store.Store, audit AuditSink, power PowerObserver, src rand.Source) *EnhancementEngine {
	return &EnhancementEngine{
		store:  st,
		audit:  audit,
		power:  power,
		logger: util.GetLogger(),
		rng:    newLockedRand(src),
	}
}

// Attempt runs one enhancement attempt on the instance. An instance locked
// for listing cannot be enhanced; an equipped instance can. On failure the
// severity is taken from the pre-attempt level; a protection token, when
// requested and held, downgrades a reset or explosion at level >= 16 to a
// single level loss.
func (ee *EnhancementEngine) Attempt(ctx context.Context, actor, uid string, useProtection bool) (*EnhanceResult, error) {
	ctx, span := util.StartSpan(ctx, "EnhancementEngine.Attempt")
	defer span.End()

	eq, err := ee.store.GetEquipment(ctx, uid)
	if err != nil {
		return nil, err
	}
	if eq.Owner != actor {
		return nil, fmt.Errorf("equipment %s: %w", uid, models.ErrNotOwned)
	}
	if eq.Locked && eq.LockReason == models.LockReasonListing {
		return nil, fmt.Errorf("equipment %s listed: %w", uid, models.ErrAlreadyLocked)
	}
	if eq.EnhancementLevel >= gamedata.MaxEnhancementLevel {
		return nil, fmt.Errorf("equipment %s at level %d: %w",
			uid, eq.EnhancementLevel, models.ErrAtMaxLevel)
	}

	preLevel := eq.EnhancementLevel
	if ee.rng.Float64() < gamedata.EnhanceSuccessRate(preLevel) {
		return ee.succeed(ctx, actor, eq, preLevel)
	}
	return ee.fail(ctx, actor, eq, preLevel, useProtection)
}

func (ee *EnhancementEngine) succeed(ctx context.Context, actor string, eq *models.EquipmentInstance, preLevel int) (*EnhanceResult, error) {
	eq.EnhancementLevel = preLevel + 1
	eq.Attributes = models.Attributes{
		Atk:     ee.grow(eq.Attributes.Atk),
		Def:     ee.grow(eq.Attributes.Def),
		HP:      ee.grow(eq.Attributes.HP),
		Spd:     ee.grow(eq.Attributes.Spd),
		Crit:    ee.grow(eq.Attributes.Crit),
		CritDmg: ee.grow(eq.Attributes.CritDmg),
	}

	if err := ee.store.UpdateEquipment(ctx, eq); err != nil {
		return nil, err
	}

	util.EnhanceAttemptsTotal.WithLabelValues(OutcomeSuccess).Inc()
	ee.audit.EmitAudit(ctx, models.EventTypeEnhanceSuccess, actor, "enhance",
		map[string]any{"uid": eq.UID, "pre_level": preLevel, "post_level": eq.EnhancementLevel})
	if eq.Locked && eq.LockReason == models.LockReasonEquip {
		ee.power.PowerChanged(ctx, actor, "enhance")
	}

	return &EnhanceResult{
		UID:        eq.UID,
		Outcome:    OutcomeSuccess,
		PreLevel:   preLevel,
		PostLevel:  eq.EnhancementLevel,
		Attributes: &eq.Attributes,
	}, nil
}

func (ee *EnhancementEngine) fail(ctx context.Context, actor string, eq *models.EquipmentInstance, preLevel int, useProtection bool) (*EnhanceResult, error) {
	severity := gamedata.EnhanceFailureSeverity(preLevel)
	outcome := OutcomeFailure
	tokenConsumed := false

	severe := severity == gamedata.FailureReset || severity == gamedata.FailureExplosion
	if useProtection && severe && preLevel >= gamedata.ProtectionMinLevel {
		_, err := ee.store.AdjustStack(ctx, actor, gamedata.ProtectionItemID, -1)
		switch {
		case err == nil:
			tokenConsumed = true
			severity = gamedata.FailureMinusOne
			outcome = OutcomeProtected
		case errors.Is(err, models.ErrInsufficientStock):
			// No token held: proceed unprotected.
		default:
			return nil, err
		}
	}

	if severity == gamedata.FailureExplosion {
		return ee.explode(ctx, actor, eq, preLevel)
	}

	postLevel := preLevel
	switch severity {
	case gamedata.FailureMinusOne:
		postLevel = preLevel - 1
	case gamedata.FailureMinusTwo:
		postLevel = preLevel - 2
	case gamedata.FailureReset:
		postLevel = 0
	}
	if postLevel < 0 {
		postLevel = 0
	}

	if postLevel != preLevel {
		eq.EnhancementLevel = postLevel
		if err := ee.store.UpdateEquipment(ctx, eq); err != nil {
			return nil, err
		}
	}

	eventType := models.EventTypeEnhanceFailure
	if tokenConsumed {
		eventType = models.EventTypeEnhanceProtected
	}
	util.EnhanceAttemptsTotal.WithLabelValues(outcome).Inc()
	ee.audit.EmitAudit(ctx, eventType, actor, "enhance", map[string]any{
		"uid":            eq.UID,
		"pre_level":      preLevel,
		"post_level":     postLevel,
		"token_consumed": tokenConsumed,
	})

	return &EnhanceResult{
		UID:           eq.UID,
		Outcome:       outcome,
		PreLevel:      preLevel,
		PostLevel:     postLevel,
		TokenConsumed: tokenConsumed,
		Attributes:    &eq.Attributes,
	}, nil
}

func (ee *EnhancementEngine) explode(ctx context.Context, actor string, eq *models.EquipmentInstance, preLevel int) (*EnhanceResult, error) {
	if eq.Locked && eq.LockReason == models.LockReasonEquip {
		if err := ee.clearEquippedSlot(ctx, actor, eq.UID); err != nil {
			ee.logger.Warn("Failed to clear slot of destroyed equipment",
				zap.String("uid", eq.UID), zap.Error(err))
		}
	}
	if err := ee.store.DeleteEquipment(ctx, eq.UID); err != nil {
		return nil, err
	}

	util.EnhanceAttemptsTotal.WithLabelValues(OutcomeDestroyed).Inc()
	ee.audit.EmitAudit(ctx, models.EventTypeEnhanceExplosion, actor, "enhance",
		map[string]any{"uid": eq.UID, "pre_level": preLevel})
	ee.power.PowerChanged(ctx, actor, "explosion")

	return &EnhanceResult{
		UID:      eq.UID,
		Outcome:  OutcomeDestroyed,
		PreLevel: preLevel,
	}, nil
}

func (ee *EnhancementEngine) clearEquippedSlot(ctx context.Context, owner, uid string) error {
	slots, err := ee.store.GetSlots(ctx, owner)
	if err != nil {
		return err
	}
	for slot, occupant := range slots {
		if occupant == uid {
			return ee.store.ClearSlot(ctx, owner, slot)
		}
	}
	return nil
}

func (ee *EnhancementEngine) grow(attr int) int {
	factor := gamedata.GrowthFactorMin +
		ee.rng.Float64()*(gamedata.GrowthFactorMax-gamedata.GrowthFactorMin)
	return int(math.Floor(float64(attr) * factor))
}

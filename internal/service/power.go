package service

import (
	"context"

	"go.uber.org/zap"

	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// PowerService derives an account's combat power from its equipped instances
// and publishes it to the power leaderboard. Invoked by the power worker in
// response to PowerChanged events, never inline by the core operations.
type PowerService struct {
	store  store.Store
	logger *zap.Logger
}

// NewPowerService creates the power calculator.
func NewPowerService(st store.Store) *PowerService {
	return &PowerService{store: st, logger: util.GetLogger()}
}

// ComputePower sums the attributes of everything the account has equipped.
// A slot pointing at a destroyed instance contributes nothing.
func (ps *PowerService) ComputePower(ctx context.Context, username string) (int64, error) {
	slots, err := ps.store.GetSlots(ctx, username)
	if err != nil {
		return 0, err
	}

	var power int64
	for _, uid := range slots {
		eq, err := ps.store.GetEquipment(ctx, uid)
		if err != nil {
			continue
		}
		power += int64(eq.Attributes.Sum())
	}
	return power, nil
}

// RecomputeAndPublish recomputes the account's power and republishes its rank.
func (ps *PowerService) RecomputeAndPublish(ctx context.Context, username string) (int64, error) {
	power, err := ps.ComputePower(ctx, username)
	if err != nil {
		return 0, err
	}
	if err := ps.store.UpdateRank(ctx, store.BoardPower, username, power); err != nil {
		return 0, err
	}

	ps.logger.Debug("Published combat power",
		zap.String("username", username), zap.Int64("power", power))
	return power, nil
}

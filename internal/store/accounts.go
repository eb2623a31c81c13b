package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"game-economy-service/internal/models"
	"game-economy-service/internal/redisclient"
)

// CreateAccount creates a fresh account hash with the given starting gold.
// Fails with ErrConflict when the username is already taken.
func (s *Redis) CreateAccount(ctx context.Context, username string, gold int64) (*models.Account, error) {
	rdb := s.client.GetClient()
	now := time.Now().UTC()

	ok, err := rdb.HSetNX(ctx, accountKey(username), "username", username).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, models.ErrConflict)
	}

	err = rdb.HSet(ctx, accountKey(username), map[string]interface{}{
		"gold":       strconv.FormatInt(gold, 10),
		"banned":     "0",
		"created_at": now.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to seed account fields: %w", err)
	}

	return &models.Account{Username: username, Gold: gold, CreatedAt: now}, nil
}

// GetAccount loads an account hash.
func (s *Redis) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	fields, err := s.client.GetClient().HGetAll(ctx, accountKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}

	gold, _ := strconv.ParseInt(fields["gold"], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &models.Account{
		Username:  fields["username"],
		Gold:      gold,
		Banned:    fields["banned"] == "1",
		CreatedAt: createdAt,
	}, nil
}

// Credit atomically raises an account balance. The account must exist.
func (s *Redis) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	res, err := s.client.CreditGold(ctx, accountKey(username), amount)
	if err != nil {
		return 0, err
	}
	if res == redisclient.ScriptAbsent {
		return 0, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	return res, nil
}

// Debit atomically lowers an account balance, rejecting a debit that would go
// negative. The post-condition check lives inside the script, not in a prior
// read.
func (s *Redis) Debit(ctx context.Context, username string, amount int64) (int64, error) {
	res, err := s.client.DebitGold(ctx, accountKey(username), amount)
	if err != nil {
		return 0, err
	}
	switch res {
	case redisclient.ScriptAbsent:
		return 0, fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	case redisclient.ScriptRefused:
		return 0, fmt.Errorf("account %s: %w", username, models.ErrInsufficientFunds)
	}
	return res, nil
}

// SetBanned flips the ban flag on an account.
func (s *Redis) SetBanned(ctx context.Context, username string, banned bool) error {
	rdb := s.client.GetClient()
	exists, err := rdb.Exists(ctx, accountKey(username)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("account %s: %w", username, models.ErrNotFound)
	}
	flag := "0"
	if banned {
		flag = "1"
	}
	return rdb.HSet(ctx, accountKey(username), "banned", flag).Err()
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"game-economy-service/internal/gamedata"
	"game-economy-service/internal/models"
	"game-economy-service/internal/store"
	"game-economy-service/internal/util"
)

// creditRetries bounds the inline retry of a transfer's credit half before it
// is parked for reconciliation.
const creditRetries = 3

// Ledger owns account gold. Every debit and credit is a single atomic
// conditional operation in the store; the debit's non-negativity check is the
// authoritative funds check, not any prior read.
type Ledger struct {
	store  store.Store
	audit  AuditSink
	logger *zap.Logger
}

// NewLedger creates the account ledger.
func NewLedger(st store.Store, audit AuditSink) *Ledger {
	return &Ledger{
		store:  st,
		audit:  audit,
		logger: util.GetLogger(),
	}
}

// CreateAccount registers a new account with the starting gold grant.
func (l *Ledger) CreateAccount(ctx context.Context, username string) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.CreateAccount")
	defer span.End()

	if username == "" {
		return nil, fmt.Errorf("username required: %w", models.ErrInvalidArgument)
	}

	acct, err := l.store.CreateAccount(ctx, username, gamedata.StartingGold)
	if err != nil {
		return nil, err
	}

	l.publishGoldRank(ctx, username, acct.Gold)
	l.audit.EmitAudit(ctx, models.EventTypeAccountCreated, username, "register",
		map[string]any{"gold": acct.Gold})
	return acct, nil
}

// GetAccount loads an account.
func (l *Ledger) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	return l.store.GetAccount(ctx, username)
}

// Credit raises a balance. Always succeeds when the account exists.
func (l *Ledger) Credit(ctx context.Context, actor, username string, amount int64) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Credit")
	defer span.End()

	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive: %w", models.ErrInvalidArgument)
	}

	balance, err := l.store.Credit(ctx, username, amount)
	if err != nil {
		return 0, err
	}

	util.LedgerCreditsTotal.Inc()
	l.publishGoldRank(ctx, username, balance)
	l.audit.EmitAudit(ctx, models.EventTypeGoldCredited, actor, "credit",
		map[string]any{"target": username, "amount": amount, "resulting_balance": balance})
	return balance, nil
}

// Debit lowers a balance. A debit exceeding the balance is rejected atomically
// and leaves the balance unchanged.
func (l *Ledger) Debit(ctx context.Context, actor, username string, amount int64) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.Debit")
	defer span.End()

	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive: %w", models.ErrInvalidArgument)
	}

	balance, err := l.store.Debit(ctx, username, amount)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			util.LedgerDebitsRejected.WithLabelValues("insufficient_funds").Inc()
		}
		return 0, err
	}

	util.LedgerDebitsTotal.Inc()
	l.publishGoldRank(ctx, username, balance)
	l.audit.EmitAudit(ctx, models.EventTypeGoldDebited, actor, "debit",
		map[string]any{"target": username, "amount": amount, "resulting_balance": balance})
	return balance, nil
}

// Transfer moves gold between accounts as debit-then-credit. The debit is the
// authoritative funds check. A credit that cannot be confirmed after the
// inline retries is parked on the reconciliation queue and retried by the
// reconcile worker until it lands: debited gold is never dropped.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Transfer")
	defer span.End()

	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %w", models.ErrInvalidArgument)
	}
	if from == to {
		return fmt.Errorf("transfer to self: %w", models.ErrInvalidArgument)
	}

	// Recipient existence is checked up front so a typo fails before any
	// gold moves, not after the debit.
	if _, err := l.store.GetAccount(ctx, to); err != nil {
		return err
	}

	if _, err := l.store.Debit(ctx, from, amount); err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			util.LedgerDebitsRejected.WithLabelValues("insufficient_funds").Inc()
		}
		return err
	}

	var balance int64
	var err error
	for attempt := 0; attempt < creditRetries; attempt++ {
		balance, err = l.store.Credit(ctx, to, amount)
		if err == nil {
			break
		}
		l.logger.Warn("Transfer credit attempt failed",
			zap.String("from", from), zap.String("to", to),
			zap.Int64("amount", amount), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		// Unresolved-transfer incident: the debit happened, the credit is
		// owed. Park it; the reconcile worker retries until confirmed.
		pc := models.PendingCredit{
			TransferID: uuid.New().String(),
			From:       from,
			To:         to,
			Amount:     amount,
			CreatedAt:  time.Now().UTC(),
		}
		if pushErr := l.store.PushPendingCredit(ctx, pc); pushErr != nil {
			l.logger.Error("CRITICAL: failed to park unresolved transfer credit",
				zap.String("transfer_id", pc.TransferID),
				zap.String("to", to), zap.Int64("amount", amount), zap.Error(pushErr))
		}
		util.TransfersPendingTotal.Inc()
		l.audit.EmitAudit(ctx, models.EventTypeTransferPending, from, "transfer_pending",
			map[string]any{"transfer_id": pc.TransferID, "to": to, "amount": amount})
		return nil
	}

	util.TransfersSettledTotal.Inc()
	l.publishGoldRank(ctx, to, balance)
	l.audit.EmitAudit(ctx, models.EventTypeTransferSettled, from, "transfer",
		map[string]any{"to": to, "amount": amount})
	return nil
}

// ResolvePendingCredit retries the credit half of a parked transfer. Returns
// an error when the credit still cannot be confirmed; the caller re-parks it.
func (l *Ledger) ResolvePendingCredit(ctx context.Context, pc models.PendingCredit) error {
	balance, err := l.store.Credit(ctx, pc.To, pc.Amount)
	if err != nil {
		return err
	}

	util.TransfersReconciledTotal.Inc()
	l.publishGoldRank(ctx, pc.To, balance)
	l.audit.EmitAudit(ctx, models.EventTypeTransferReconciled, pc.From, "transfer_reconciled",
		map[string]any{"transfer_id": pc.TransferID, "to": pc.To, "amount": pc.Amount})
	return nil
}

// SetBanned flips the ban flag (administrative).
func (l *Ledger) SetBanned(ctx context.Context, actor, username string, banned bool) error {
	if err := l.store.SetBanned(ctx, username, banned); err != nil {
		return err
	}

	eventType := models.EventTypeAccountUnbanned
	action := "admin_unban"
	if banned {
		eventType = models.EventTypeAccountBanned
		action = "admin_ban"
	}
	l.audit.EmitAudit(ctx, eventType, actor, action, map[string]any{"target": username})
	return nil
}

// Leaderboard returns the top entries of a ranking board.
func (l *Ledger) Leaderboard(ctx context.Context, board string, limit int64) ([]store.RankEntry, error) {
	return l.store.TopRanks(ctx, board, limit)
}

func (l *Ledger) publishGoldRank(ctx context.Context, username string, balance int64) {
	if err := l.store.UpdateRank(ctx, store.BoardGold, username, balance); err != nil {
		l.logger.Warn("Failed to update gold leaderboard",
			zap.String("username", username), zap.Error(err))
	}
}

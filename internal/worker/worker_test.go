package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-economy-service/internal/models"
	"game-economy-service/internal/service"
	"game-economy-service/internal/store"
)

func TestReconcileWorkerDrainsQueue(t *testing.T) {
	st := store.NewMemory()
	ledger := service.NewLedger(st, service.NopAudit{})
	ctx := context.Background()

	_, err := ledger.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = ledger.CreateAccount(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, st.PushPendingCredit(ctx, models.PendingCredit{
		TransferID: "t1", From: "alice", To: "bob", Amount: 40, CreatedAt: time.Now(),
	}))
	require.NoError(t, st.PushPendingCredit(ctx, models.PendingCredit{
		TransferID: "t2", From: "alice", To: "bob", Amount: 2, CreatedAt: time.Now(),
	}))

	w := NewReconcileWorker(st, ledger, time.Second)
	w.drain(ctx)

	bob, err := ledger.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(142), bob.Gold)

	pc, err := st.PopPendingCredit(ctx)
	require.NoError(t, err)
	assert.Nil(t, pc)
}

func TestReconcileWorkerReparksUnresolvedCredit(t *testing.T) {
	st := store.NewMemory()
	ledger := service.NewLedger(st, service.NopAudit{})
	ctx := context.Background()

	// Recipient does not exist: the credit cannot land yet and must stay
	// parked instead of being dropped.
	require.NoError(t, st.PushPendingCredit(ctx, models.PendingCredit{
		TransferID: "t1", From: "alice", To: "ghost", Amount: 40, CreatedAt: time.Now(),
	}))

	w := NewReconcileWorker(st, ledger, time.Second)
	w.drain(ctx)

	pc, err := st.PopPendingCredit(ctx)
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, "t1", pc.TransferID)
	assert.Equal(t, int64(40), pc.Amount)
}

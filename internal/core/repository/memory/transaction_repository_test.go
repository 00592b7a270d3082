package memory_test

import (
	"context"
	"testing"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
	"github.com/Nzyazin/payagent/internal/core/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTransitionFollowsStateMachine(t *testing.T) {
	repo := memory.NewTransactionRepo()
	ctx := context.Background()

	id, err := repo.Insert(ctx, models.NewTransaction("b1", "u1", models.Candidate{
		Vendor:        "Acme",
		Amount:        decimal.NewFromInt(500),
		AccountNumber: strPtr("1234567890"),
	}))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.TransitionStatus(ctx, id, models.StatusPaid), repository.ErrTransitionRejected)
	require.NoError(t, repo.TransitionStatus(ctx, id, models.StatusQueuedForPayment))
	require.NoError(t, repo.TransitionStatus(ctx, id, models.StatusWaitingForPin))
	require.NoError(t, repo.TransitionStatus(ctx, id, models.StatusFailed))
	assert.ErrorIs(t, repo.TransitionStatus(ctx, id, models.StatusWaitingForPin), repository.ErrTransitionRejected)
	require.NoError(t, repo.TransitionStatus(ctx, id, models.StatusQueuedForPayment))

	assert.Equal(t, []models.Status{
		models.StatusNeedsApproval,
		models.StatusQueuedForPayment,
		models.StatusWaitingForPin,
		models.StatusFailed,
		models.StatusQueuedForPayment,
	}, repo.History(id))

	assert.ErrorIs(t, repo.TransitionStatus(ctx, 999, models.StatusPaid), repository.ErrNotFound)
}

func TestUpdateDetailsPromotesReviewedTransaction(t *testing.T) {
	repo := memory.NewTransactionRepo()
	ctx := context.Background()

	id, err := repo.Insert(ctx, models.NewTransaction("b1", "u1", models.Candidate{Vendor: "Acme"}))
	require.NoError(t, err)

	tx, err := repo.UpdateDetails(ctx, id, models.DetailsPatch{Remarks: strPtr("march")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsReview, tx.Status)

	tx, err = repo.UpdateDetails(ctx, id, models.DetailsPatch{AccountNumber: strPtr("42")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsApproval, tx.Status)
	assert.Equal(t, "42", tx.Account())
}

func TestListingFiltersByOwnerAndBatch(t *testing.T) {
	repo := memory.NewTransactionRepo()
	ctx := context.Background()

	for _, owner := range []string{"u1", "u1", "u2"} {
		_, err := repo.Insert(ctx, models.NewTransaction("b1", owner, models.Candidate{
			Vendor:        "Acme",
			AccountNumber: strPtr("1"),
		}))
		require.NoError(t, err)
	}

	pending, err := repo.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Greater(t, pending[0].ID, pending[1].ID)

	batch, err := repo.ListByBatch(ctx, "u1", "b1", models.StatusNeedsApproval)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Less(t, batch[0].ID, batch[1].ID)

	none, err := repo.ListByBatch(ctx, "u1", "b1", models.StatusPaid)
	require.NoError(t, err)
	assert.Empty(t, none)
}

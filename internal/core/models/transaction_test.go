package models_test

import (
	"testing"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestNewTransactionInitialStatus(t *testing.T) {
	tests := []struct {
		name    string
		account *string
		want    models.Status
	}{
		{"missing account", nil, models.StatusNeedsReview},
		{"empty account", strPtr(""), models.StatusNeedsReview},
		{"account present", strPtr("1234567890"), models.StatusNeedsApproval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := models.NewTransaction("batch", "owner", models.Candidate{
				Vendor:        "Acme",
				Amount:        decimal.NewFromInt(500),
				AccountNumber: tt.account,
			})
			assert.Equal(t, tt.want, tx.Status)
			assert.Zero(t, tx.ID)
			assert.Equal(t, "batch", tx.BatchID)
			assert.Equal(t, "owner", tx.OwnerUserID)
		})
	}
}

func TestCanTransition(t *testing.T) {
	all := []models.Status{
		models.StatusNeedsReview,
		models.StatusNeedsApproval,
		models.StatusQueuedForPayment,
		models.StatusWaitingForPin,
		models.StatusPaid,
		models.StatusFailed,
	}
	edges := map[[2]models.Status]bool{
		{models.StatusNeedsReview, models.StatusNeedsApproval}:      true,
		{models.StatusNeedsApproval, models.StatusQueuedForPayment}: true,
		{models.StatusFailed, models.StatusQueuedForPayment}:        true,
		{models.StatusQueuedForPayment, models.StatusWaitingForPin}: true,
		{models.StatusQueuedForPayment, models.StatusFailed}:        true,
		{models.StatusWaitingForPin, models.StatusPaid}:             true,
		{models.StatusWaitingForPin, models.StatusFailed}:           true,
	}

	for _, from := range all {
		for _, to := range all {
			want := from == to || edges[[2]models.Status{from, to}]
			assert.Equal(t, want, models.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesNeverRegress(t *testing.T) {
	for _, terminal := range []models.Status{models.StatusPaid, models.StatusFailed} {
		for _, to := range []models.Status{models.StatusNeedsReview, models.StatusNeedsApproval, models.StatusWaitingForPin} {
			assert.False(t, models.CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, models.CanTransition(models.StatusPaid, models.StatusQueuedForPayment))
	assert.False(t, models.CanTransition(models.StatusPaid, models.StatusFailed))
	assert.False(t, models.CanTransition(models.StatusFailed, models.StatusPaid))
}

func TestDetailsPatchApply(t *testing.T) {
	tx := models.NewTransaction("b", "o", models.Candidate{Vendor: "Old", Amount: decimal.NewFromInt(1)})
	amount := decimal.RequireFromString("12.50")

	patch := models.DetailsPatch{Vendor: strPtr("New"), Amount: &amount}
	assert.False(t, patch.IsEmpty())
	patch.Apply(tx)

	assert.Equal(t, "New", tx.Vendor)
	assert.True(t, tx.Amount.Equal(amount))
	assert.Nil(t, tx.AccountNumber)
	assert.True(t, models.DetailsPatch{}.IsEmpty())
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single payment instruction extracted from an invoice.
type Transaction struct {
	ID            int64           `json:"id" db:"id"`
	BatchID       string          `json:"batch_id" db:"batch_id"`
	Vendor        string          `json:"vendor" db:"vendor"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	AccountNumber *string         `json:"account_number" db:"account_number"`
	IFSCCode      *string         `json:"ifsc_code" db:"ifsc_code"`
	Remarks       *string         `json:"remarks" db:"remarks"`
	Status        Status          `json:"status" db:"status"`
	OwnerUserID   string          `json:"user_id" db:"user_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Candidate is one transaction as returned by the extraction service.
type Candidate struct {
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber *string         `json:"account_number"`
	IFSCCode      *string         `json:"ifsc_code"`
	Remarks       *string         `json:"remarks"`
}

// NewTransaction builds an unsaved transaction for a candidate. The ID is
// assigned by the store on insert.
func NewTransaction(batchID, ownerUserID string, c Candidate) *Transaction {
	status := StatusNeedsApproval
	if !hasText(c.AccountNumber) {
		status = StatusNeedsReview
	}
	return &Transaction{
		BatchID:       batchID,
		Vendor:        c.Vendor,
		Amount:        c.Amount,
		AccountNumber: c.AccountNumber,
		IFSCCode:      c.IFSCCode,
		Remarks:       c.Remarks,
		Status:        status,
		OwnerUserID:   ownerUserID,
	}
}

// Account returns the beneficiary account or an empty string.
func (t *Transaction) Account() string {
	if t.AccountNumber == nil {
		return ""
	}
	return *t.AccountNumber
}

func (t *Transaction) HasAccount() bool {
	return hasText(t.AccountNumber)
}

// DetailsPatch carries manual edits to a transaction. Nil fields are left untouched.
type DetailsPatch struct {
	Vendor        *string          `json:"vendor"`
	Amount        *decimal.Decimal `json:"amount"`
	AccountNumber *string          `json:"account_number"`
	IFSCCode      *string          `json:"ifsc_code"`
	Remarks       *string          `json:"remarks"`
}

func (p DetailsPatch) IsEmpty() bool {
	return p.Vendor == nil && p.Amount == nil && p.AccountNumber == nil && p.IFSCCode == nil && p.Remarks == nil
}

// Apply copies the non-nil fields of p onto t.
func (p DetailsPatch) Apply(t *Transaction) {
	if p.Vendor != nil {
		t.Vendor = *p.Vendor
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.AccountNumber != nil {
		t.AccountNumber = p.AccountNumber
	}
	if p.IFSCCode != nil {
		t.IFSCCode = p.IFSCCode
	}
	if p.Remarks != nil {
		t.Remarks = p.Remarks
	}
}

func hasText(s *string) bool {
	return s != nil && *s != ""
}

package usecase

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("transaction belongs to another user")
	ErrInvalidState        = errors.New("transaction is not in a state that allows this operation")
	ErrPinRequired         = errors.New("pin is required")
	ErrMissingAccount      = errors.New("transaction has no beneficiary account")
	ErrDispatchFailed      = errors.New("failed to queue payment")
	ErrPaymentRejected     = errors.New("bank did not confirm the payment")
	ErrEmptyPatch          = errors.New("no fields to update")
	ErrBatchAborted        = errors.New("batch aborted before this transaction was reached")
)

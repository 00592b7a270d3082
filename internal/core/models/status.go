package models

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusNeedsReview      Status = "NEEDS_REVIEW"
	StatusNeedsApproval    Status = "NEEDS_APPROVAL"
	StatusQueuedForPayment Status = "QUEUED_FOR_PAYMENT"
	StatusWaitingForPin    Status = "WAITING_FOR_PIN"
	StatusPaid             Status = "PAID"
	StatusFailed           Status = "FAILED"
)

// transitions lists, for every target status, the statuses it may be reached from.
// FAILED -> QUEUED_FOR_PAYMENT is the external re-queue; QUEUED_FOR_PAYMENT -> FAILED
// covers automation failures that happen before the PIN prompt.
var transitions = map[Status][]Status{
	StatusNeedsApproval:    {StatusNeedsReview},
	StatusQueuedForPayment: {StatusNeedsApproval, StatusFailed},
	StatusWaitingForPin:    {StatusQueuedForPayment},
	StatusPaid:             {StatusWaitingForPin},
	StatusFailed:           {StatusQueuedForPayment, StatusWaitingForPin},
}

// PendingStatuses are shown to the owner as still requiring attention.
var PendingStatuses = []Status{
	StatusNeedsReview,
	StatusNeedsApproval,
	StatusQueuedForPayment,
	StatusWaitingForPin,
}

// EditableStatuses permit manual edits of transaction details.
var EditableStatuses = []Status{StatusNeedsReview, StatusNeedsApproval}

func (s Status) IsValid() bool {
	switch s {
	case StatusNeedsReview, StatusNeedsApproval, StatusQueuedForPayment,
		StatusWaitingForPin, StatusPaid, StatusFailed:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the state machine.
// Re-writing the current status is always allowed and changes nothing.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.IsValid()
	}
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// SourcesOf returns every status from which to may be written, including to itself.
func SourcesOf(to Status) []Status {
	src := make([]Status, 0, len(transitions[to])+1)
	src = append(src, to)
	return append(src, transitions[to]...)
}

// ExecutableStatuses are accepted by the payment orchestrator. WAITING_FOR_PIN
// is included so a redelivered job can restart a run interrupted by a crash.
func (s Status) IsExecutable() bool {
	return s == StatusNeedsApproval || s == StatusQueuedForPayment || s == StatusWaitingForPin
}

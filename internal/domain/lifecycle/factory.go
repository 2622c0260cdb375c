package lifecycle

// NewInvoiceMachine builds the invoice lifecycle starting at initial.
//
//	DRAFT --SEND--> SENT --MARK_OVERDUE--> OVERDUE
//	DRAFT|SENT|OVERDUE --MARK_PAID--> PAID
//
// MARK_PAID is permitted from every non-terminal state because a
// verified payment webhook settles the invoice no matter where the
// local record sits; PAID is absorbing.
func NewInvoiceMachine(initial State) Machine {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSend, StateSent).
		Permit(TriggerMarkPaid, StatePaid)

	b.Configure(StateSent).
		Permit(TriggerMarkOverdue, StateOverdue).
		Permit(TriggerMarkPaid, StatePaid)

	b.Configure(StateOverdue).
		Permit(TriggerMarkPaid, StatePaid)

	return b.Build(initial)
}

// NewPaymentMachine builds the payment-attempt lifecycle starting at
// initial.
//
//	PENDING --SUCCEED--> SUCCEEDED
//	PENDING --FAIL--> FAILED
//
// Both outcomes are absorbing. Redelivered events for a settled
// attempt refresh the stored payload but never move the state, which
// keeps out-of-order webhook delivery convergent.
func NewPaymentMachine(initial State) Machine {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerSucceed, StateSucceeded).
		Permit(TriggerFail, StateFailed)

	return b.Build(initial)
}

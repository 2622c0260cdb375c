package lifecycle

// Trigger is an event that can cause a state transition
type Trigger string

const (
	// Invoice triggers
	TriggerSend        Trigger = "SEND"
	TriggerMarkOverdue Trigger = "MARK_OVERDUE"
	TriggerMarkPaid    Trigger = "MARK_PAID"

	// Payment triggers
	TriggerSucceed Trigger = "SUCCEED"
	TriggerFail    Trigger = "FAIL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

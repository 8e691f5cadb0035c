package settlement

import "time"

// Event types published to the settlement topic for downstream
// consumers (the notifier).
const (
	EventCheckoutCompleted = "settlement.checkout_completed"
	EventCheckoutExpired   = "settlement.checkout_expired"
	EventRefundRestocked   = "settlement.refund_restocked"
)

// Event is the payload written to the settlement topic after a
// reconciliation changed local state.
type Event struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}

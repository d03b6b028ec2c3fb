package reservation

// Cancellation reasons recorded on the reservation row.
const (
	ReasonUserCancelled  = "cancelled_by_user"
	ReasonPaymentFailed  = "payment_failed"
	ReasonPaymentTimeout = "payment_timeout"
)

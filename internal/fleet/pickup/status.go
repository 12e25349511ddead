package pickup

// Status is the outcome of a pickup operation. Callers branch on it; pickup
// operations never return raw errors.
type Status string

const (
	StatusOtpSent         Status = "OTP_SENT"
	StatusOtpResent       Status = "OTP_RESENT"
	StatusEmailSendFailed Status = "EMAIL_SEND_FAILED"
	StatusOrderNotFound   Status = "ORDER_NOT_FOUND"
	StatusTripNotFound    Status = "TRIP_NOT_FOUND"
	StatusTripMismatch    Status = "TRIP_MISMATCH"
	StatusAlreadyPickedUp Status = "ALREADY_PICKED_UP"
	StatusNotReady        Status = "NOT_READY_FOR_PICKUP"
	StatusRateLimited     Status = "RATE_LIMIT_EXCEEDED"
	StatusInvalidOtp      Status = "INVALID_OTP"
	StatusOtpExpired      Status = "OTP_EXPIRED"
	StatusOtpVerified     Status = "OTP_VERIFIED"
	StatusOtpNotVerified  Status = "OTP_NOT_VERIFIED"
	StatusPickupCompleted Status = "PICKUP_COMPLETED"
	StatusServerError     Status = "SERVER_ERROR"
)

func (s Status) String() string { return string(s) }

package handlers

// Close reasons sent with protocol-level connection closures. The codes
// themselves are the standard ones: StatusPolicyViolation for auth and
// cap failures, StatusGoingAway for shutdown.
const (
	closeReasonMissingToken    = "missing token"
	closeReasonInvalidToken    = "invalid token"
	closeReasonConnectionLimit = "connection limit reached"
)

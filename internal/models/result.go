package models

// FailureClass distinguishes how a provider call failed. Transport failures
// are network-level problems; remote rejections are reported by the provider's
// own API and represent a business outcome (bad recipient, invalid credential,
// rate limit). The two may warrant different retry behavior, so the
// classification is always preserved in logs even when retried uniformly.
type FailureClass string

const (
	FailureTransport      FailureClass = "transport"
	FailureRemoteRejected FailureClass = "remote_rejected"
)

// DeliveryResult is the structured outcome of one provider send. Provider
// clients return it instead of raising for expected remote failures.
type DeliveryResult struct {
	OK      bool         `json:"ok"`
	Class   FailureClass `json:"class,omitempty"`
	Message string       `json:"message,omitempty"`
	// Status carries the raw transport status (HTTP status code) or the
	// provider's own error code, depending on the classification.
	Status int `json:"status,omitempty"`
}

// Delivered returns a successful result.
func Delivered() DeliveryResult {
	return DeliveryResult{OK: true}
}

// TransportFailure returns a failure caused below the provider's API:
// timeout, connection refused, or a non-2xx response with no parseable body.
func TransportFailure(message string, status int) DeliveryResult {
	return DeliveryResult{Class: FailureTransport, Message: message, Status: status}
}

// RemoteRejected returns a failure the provider's API reported itself.
func RemoteRejected(message string, code int) DeliveryResult {
	return DeliveryResult{Class: FailureRemoteRejected, Message: message, Status: code}
}

// Failed reports whether the result is any kind of failure.
func (r DeliveryResult) Failed() bool { return !r.OK }

package domain

// OutcomeKind is the result class of one relay attempt.
type OutcomeKind string

const (
	OutcomeDelivered        OutcomeKind = "delivered"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	OutcomePermanentFailure OutcomeKind = "permanent_failure"
	OutcomeRevoked          OutcomeKind = "revoked"
)

// DeliveryOutcome is returned to the queue consumer, which decides whether
// to acknowledge or requeue. It is never persisted by the relay itself.
//
// A Delivered outcome with Skipped set is a no-op: the message was not bound
// for the platform (missing link, loop guard, sync preferences, missing
// permission, or already delivered).
type DeliveryOutcome struct {
	Kind     OutcomeKind `json:"kind"`
	Reason   string      `json:"reason,omitempty"`
	Skipped  bool        `json:"skipped,omitempty"`
	RemoteID string      `json:"remote_id,omitempty"`
	Path     string      `json:"path,omitempty"`
}

// Delivered reports a successful publish.
func Delivered(path, remoteID string) DeliveryOutcome {
	return DeliveryOutcome{Kind: OutcomeDelivered, Path: path, RemoteID: remoteID}
}

// Skipped reports a no-op relay.
func Skipped(reason string) DeliveryOutcome {
	return DeliveryOutcome{Kind: OutcomeDelivered, Skipped: true, Reason: reason}
}

// TransientFailure reports a failure worth retrying later.
func TransientFailure(reason string) DeliveryOutcome {
	return DeliveryOutcome{Kind: OutcomeTransientFailure, Reason: reason}
}

// PermanentFailure reports a failure that will never succeed.
func PermanentFailure(reason string) DeliveryOutcome {
	return DeliveryOutcome{Kind: OutcomePermanentFailure, Reason: reason}
}

// Revoked reports that the link was removed after an authorization failure.
func Revoked(reason string) DeliveryOutcome {
	return DeliveryOutcome{Kind: OutcomeRevoked, Reason: reason}
}

// ShouldRequeue reports whether the consumer should try again later.
func (o DeliveryOutcome) ShouldRequeue() bool { return o.Kind == OutcomeTransientFailure }

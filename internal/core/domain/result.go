package domain

// RefreshOutcome classifies the end state of a token refresh.
type RefreshOutcome int

const (
	RefreshSucceeded RefreshOutcome = iota
	// RefreshNoCredentials means there was no refresh token to send.
	RefreshNoCredentials
	// RefreshRejected means the server answered with an error status.
	RefreshRejected
	// RefreshNetworkFailure means no server verdict was received (network or timeout).
	RefreshNetworkFailure
	// RefreshStorageFailure means the new tokens could not be persisted.
	RefreshStorageFailure
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshSucceeded:
		return "succeeded"
	case RefreshNoCredentials:
		return "no_credentials"
	case RefreshRejected:
		return "rejected"
	case RefreshNetworkFailure:
		return "network_failure"
	case RefreshStorageFailure:
		return "storage_failure"
	}
	return "unknown"
}

// RefreshResult is returned by a refresh; Session is set only on success and
// Err carries the underlying cause otherwise.
type RefreshResult struct {
	Outcome RefreshOutcome
	Session *Session
	Err     error
}

// OK reports whether the refresh produced a new session.
func (r RefreshResult) OK() bool {
	return r.Outcome == RefreshSucceeded && r.Session != nil
}

// LogoutResult reports what happened server-side during a logout. Local
// session data is always cleared regardless of its contents.
type LogoutResult struct {
	// Revoked is true when the server acknowledged the refresh token revocation.
	Revoked bool
	// Err is the server-side failure, if any.
	Err error
	// ClearErr is set when local session data could not be fully removed.
	ClearErr error
}

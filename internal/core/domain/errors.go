package domain

// RemoteError carries a domain failure reported by an external service
// (route validation, line save). The message is surfaced to the user
// verbatim so they can correct the draft and retry.
type RemoteError struct {
	Service string // "routing", "lines"
	Message string
}

func (e *RemoteError) Error() string {
	return e.Service + ": " + e.Message
}

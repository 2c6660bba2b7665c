package api

// BackendError is returned when the ledger backend responds with a
// non-success status or an envelope without a data field. Message carries the
// server-provided error string when present.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

package session

import "errors"

// ErrNotInitialized is returned when the session is used before Initialize.
var ErrNotInitialized = errors.New("credits session not initialized")

package adapter

import "errors"

var (
	// ErrPackageNotFound is returned when the requested package id is absent
	// from the resolved offerings at purchase time.
	ErrPackageNotFound = errors.New("package not found in offerings")

	// ErrNoBoundUser is returned when a purchase requires a bound user and
	// none has been set via the UserBinder capability.
	ErrNoBoundUser = errors.New("no user bound to adapter")
)

// PurchaseError wraps a platform SDK purchase failure. Cancelled is set when
// the user abandoned the payment flow rather than the SDK rejecting it.
type PurchaseError struct {
	Cancelled bool
	Err       error
}

func (e *PurchaseError) Error() string {
	if e.Cancelled {
		return "purchase cancelled by user"
	}
	return "purchase failed: " + e.Err.Error()
}

func (e *PurchaseError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is a purchase cancellation.
func IsCancelled(err error) bool {
	var pe *PurchaseError
	return errors.As(err, &pe) && pe.Cancelled
}

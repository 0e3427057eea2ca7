package entitlement

import "errors"

// Rejections are expected business-rule failures. They are reported to the
// caller with a specific reason and are never retried or logged as incidents.
// Anything else coming out of the service is a storage fault and is safe to
// retry at the caller's discretion.
var (
	ErrMachineBanned      = errors.New("machine is banned")
	ErrLicenseNotFound    = errors.New("license not found")
	ErrLicenseExpired     = errors.New("license has expired")
	ErrSeatLimitReached   = errors.New("seat limit reached")
	ErrActivationNotFound = errors.New("active activation not found")
)

// IsRejection reports whether err is an expected entitlement rejection as
// opposed to a storage fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMachineBanned) ||
		errors.Is(err, ErrLicenseNotFound) ||
		errors.Is(err, ErrLicenseExpired) ||
		errors.Is(err, ErrSeatLimitReached) ||
		errors.Is(err, ErrActivationNotFound)
}

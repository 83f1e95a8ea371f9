package benefit

import "errors"

var (
	// ErrBenefitNotFound indicates the requested benefit does not exist.
	ErrBenefitNotFound = errors.New("benefit not found")
	// ErrBenefitNameExists is returned when creating a benefit with a taken name.
	ErrBenefitNameExists = errors.New("benefit name already exists")
	// ErrBenefitInactive rejects new requests for a deactivated benefit.
	ErrBenefitInactive = errors.New("benefit is not active")
	// ErrInvalidBenefit signals a malformed create payload.
	ErrInvalidBenefit = errors.New("invalid benefit")
)

package profile

import "errors"

// Every error below is returned before any field of the record is touched.
var (
	ErrInvalidScore         = errors.New("invalid score value, must be between 0 and 1000")
	ErrUnauthorized         = errors.New("unauthorized caller for this operation")
	ErrProfileAlreadyExists = errors.New("user profile already exists")
	ErrProfileNotFound      = errors.New("user profile not found")
	ErrAddressMismatch      = errors.New("profile address does not match derivation")
	ErrCorruptRecord        = errors.New("corrupt profile record")
	ErrInvalidTier          = errors.New("invalid tier")
	ErrOverflow             = errors.New("arithmetic overflow")

	// ErrTierScoreMismatch is only produced when tier banding is enforced.
	ErrTierScoreMismatch = errors.New("tier does not match score band")
)

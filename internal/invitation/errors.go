package invitation

import "errors"

var (
	ErrValidation     = errors.New("invalid invitation request")
	ErrNotFound       = errors.New("invitation not found")
	ErrConflict       = errors.New("an invitation is already pending for this email")
	ErrForbidden      = errors.New("invitation was issued to a different email")
	ErrDispatchFailed = errors.New("invitation email could not be sent")
)

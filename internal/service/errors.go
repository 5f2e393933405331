package service

import "errors"

var (
	ErrValidation   = errors.New("validation")   // 400
	ErrConflict     = errors.New("conflict")     // 400
	ErrUnauthorized = errors.New("unauthorized") // 401
	ErrForbidden    = errors.New("forbidden")    // 403
	ErrNotFound     = errors.New("not found")    // 404
	ErrStorage      = errors.New("storage")      // 500
)

// BanError is returned when a ban refuses authentication. Message is safe to
// show to the banned user.
type BanError struct {
	Message string
}

func (e *BanError) Error() string { return e.Message }

func (e *BanError) Unwrap() error { return ErrForbidden }

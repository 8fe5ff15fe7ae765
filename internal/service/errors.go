package service

import (
	"errors"

	"github.com/diagnosis/palms-parking/internal/validate"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAccessDenied = errors.New("access denied")
	ErrIncorrectPin = errors.New("incorrect pin")
	ErrNotVerified  = errors.New("spot pin not verified")
	ErrNoWindow     = errors.New("rental window not chosen")
	ErrUnavailable  = errors.New("spot not available")
	ErrRemote       = errors.New("remote request failed")
	ErrSpotNotFound = errors.New("spot not found")
	ErrBusy         = errors.New("request already in progress")
)

// UserError carries the message a resident should see. Kind is one of the
// sentinel errors above so callers can still match with errors.Is.
type UserError struct {
	Kind    error
	Message string
	Fields  validate.FieldErrors
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Kind }

func reject(kind error, msg string) error {
	return &UserError{Kind: kind, Message: msg}
}

func rejectFields(msg string, fields validate.FieldErrors) error {
	return &UserError{Kind: ErrInvalidInput, Message: msg, Fields: fields}
}

const busyMessage = "Please wait for the previous request to finish"

func remoteMessage(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

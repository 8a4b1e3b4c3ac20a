package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidSubmission = errors.New("invalid submission id")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUnknownNote       = errors.New("unknown note")
	ErrNoDraft           = errors.New("no draft for submission")
)

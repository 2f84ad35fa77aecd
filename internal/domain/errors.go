package domain

import "errors"

var (
	ErrInvalidStatus = errors.New("invalid message status")
	ErrUnknownKind   = errors.New("unknown envelope kind")
	ErrNoTarget      = errors.New("envelope has no target")
)

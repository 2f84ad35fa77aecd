// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDInvalid = errors.New("user id contains ':'")
)

type UserID string

// ParseUserID trims and bounds an identity handed over by the auth layer.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrUserIDEmpty
	}
	if len(s) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	if strings.Contains(s, ":") {
		return "", ErrUserIDInvalid
	}
	return UserID(s), nil
}

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username,omitempty"`
}

package core

import "errors"

var (
	ErrDuplicateConnection    = errors.New("connection already registered")
	ErrUnknownConnection      = errors.New("unknown connection")
	ErrTargetOffline          = errors.New("target offline")
	ErrPersistenceWriteFailed = errors.New("persistence write failed")
	ErrBackpressure           = errors.New("backpressure")
	ErrConnectionClosed       = errors.New("connection closed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotConversationMember  = errors.New("not a conversation member")
	ErrMessageNotFound        = errors.New("message not found")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrNoRecipients           = errors.New("conversation has no other members")
)

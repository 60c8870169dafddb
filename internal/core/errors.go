package core

import "errors"

var (
	ErrNotFound          = errors.New("request not found")
	ErrInvalidTransition = errors.New("request is no longer pending")
	ErrInvalidTenant     = errors.New("invalid tenant")
	ErrInvalidInput      = errors.New("invalid input")
)

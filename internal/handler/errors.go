package handler

import "errors"

// Failure kinds raised by the console layer. Field and session failures
// come from package world.
var (
	ErrCommandNotFound = errors.New("command not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUsage           = errors.New("usage")
)

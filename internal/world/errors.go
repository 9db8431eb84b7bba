package world

import (
	"errors"
	"fmt"
)

// Failure kinds reported back to the issuing console.
var (
	ErrNoActiveSession     = errors.New("no active session")
	ErrCharacterNotFound   = errors.New("character not found")
	ErrUnknownField        = errors.New("unknown field")
	ErrInvalidNumber       = errors.New("invalid number")
	ErrDuplicateClassEquip = errors.New("duplicate class equip")
	ErrUnknownClass        = errors.New("unknown class")
	ErrNoPotionsRemaining  = errors.New("no potions remaining")
	ErrUnknownResource     = errors.New("unknown resource")
)

// Error pairs a failure kind with the text shown to the DM.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Message returns the DM-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

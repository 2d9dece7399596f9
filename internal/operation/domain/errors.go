package domain

import "errors"

var (
	ErrOperationNotFound      = errors.New("operation not found")
	ErrForbidden              = errors.New("operation belongs to another user")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidStrike          = errors.New("invalid strike")
	ErrInvalidInstrument      = errors.New("invalid instrument type")
	ErrInvalidDirection       = errors.New("invalid direction")
	ErrInvalidMargin          = errors.New("invalid margin amount")
	ErrConcurrentModification = errors.New("operation modified by another transaction")
)

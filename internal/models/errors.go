package models

import "errors"

// Typed failures returned by the economic core. The HTTP layer maps these to
// user-facing responses with errors.Is; they are never swallowed internally.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotOwned          = errors.New("not owned by caller")
	ErrAlreadyLocked     = errors.New("equipment already locked")
	ErrNotLocked         = errors.New("equipment not locked for reason")
	ErrAuctionClosed     = errors.New("auction closed")
	ErrHasBids           = errors.New("auction has standing bids")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrConflict          = errors.New("conflicting concurrent update")
	ErrAtMaxLevel        = errors.New("equipment at max enhancement level")
)

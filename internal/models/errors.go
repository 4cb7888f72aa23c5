package models

import "errors"

var (
	// ErrNotFound is returned when an entry asked for by identity is not in the store
	ErrNotFound = errors.New("not found")
	// ErrNoneAvailable is returned when a take finds no matching entry
	ErrNoneAvailable = errors.New("none available")
	// ErrUnknownRecipe is returned for a product name missing from the catalog
	ErrUnknownRecipe = errors.New("unknown recipe")
	// ErrTerminalState is returned when a sold product would be changed
	ErrTerminalState = errors.New("product is in a terminal state")
	// ErrInvalidTx is returned when a store is handed a transaction it did not open
	ErrInvalidTx = errors.New("invalid transaction handle")
)

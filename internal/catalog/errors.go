package catalog

import "errors"

var (
	// ErrNotFound is returned when a natural key or logical file key has no row in the index.
	ErrNotFound = errors.New("not in index")

	// ErrInvalidEntity is returned when an operation requires a record that has been
	// validated against the index and was given one that has not, or when a natural
	// key cannot be stored.
	ErrInvalidEntity = errors.New("entity not validated against index")

	// ErrRange is returned when a coordinate lies outside its canonical bounds.
	ErrRange = errors.New("coordinate out of range")
)

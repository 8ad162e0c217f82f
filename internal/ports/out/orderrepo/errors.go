package orderrepo

import "errors"

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyExists indicates an order already exists with the provided ID.
	ErrAlreadyExists = errors.New("order already exists")

	// ErrCartAlreadyOrdered indicates an order has already been created from the cart.
	ErrCartAlreadyOrdered = errors.New("order from cart already exists")
)

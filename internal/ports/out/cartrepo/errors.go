package cartrepo

import "errors"

var (
	ErrNotFound      = errors.New("cart not found")
	ErrAlreadyExists = errors.New("cart already exists")
)

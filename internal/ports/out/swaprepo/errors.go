package swaprepo

import "errors"

var (
	ErrNotFound      = errors.New("swap not found")
	ErrAlreadyExists = errors.New("swap already exists")
)

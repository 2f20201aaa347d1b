package models

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrConflict     = errors.New("already exists")
)

package storage

import "errors"

// ErrNotFound is returned by Get* calls when the row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned by CreateAccount when the username is taken.
var ErrAlreadyExists = errors.New("storage: already exists")

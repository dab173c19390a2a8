package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when a username is already taken,
// compared case-insensitively.
var ErrDuplicateUsername = errors.New("duplicate username")

// ErrDuplicateEmail is returned when an email is already taken,
// compared case-insensitively.
var ErrDuplicateEmail = errors.New("duplicate email")

package repository

import "errors"

var (
	// ErrNotFound indicates the row does not exist for the owner or failed its state guard.
	ErrNotFound = errors.New("repository: not found")
	// ErrActiveSessionExists indicates the (owner, vehicle) slot already holds an active session.
	ErrActiveSessionExists = errors.New("repository: active session exists")
)

package provider

import "fmt"

// NotFoundError indicates no share is stored under the requested key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no share stored under key %q", e.Key)
}

// UnauthorizedError indicates the requesting peer does not own the share
// it tried to access.
type UnauthorizedError struct {
	Key    string
	Sender string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("peer %s is not the owner of share %q", e.Sender, e.Key)
}

// StoreFailureError wraps an underlying persistence error.
type StoreFailureError struct {
	Op  string
	Err error
}

func (e *StoreFailureError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreFailureError) Unwrap() error { return e.Err }

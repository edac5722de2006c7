package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Callers match
// it with errors.Is and decide whether absence is an error at their layer.
var ErrNotFound = errors.New("repository: not found")

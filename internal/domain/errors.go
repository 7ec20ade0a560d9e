package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDuplicateName indicates a store with the same name already exists
	ErrDuplicateName = errors.New("store name already exists")
	// ErrNoStores indicates the catalog is empty
	ErrNoStores = errors.New("no stores available")
	// ErrBackendUnavailable indicates the hosted backend is not configured
	ErrBackendUnavailable = errors.New("backend unavailable")
)

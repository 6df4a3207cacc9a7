package reconciler

import (
	"errors"

	"chamber/internal/adapters/remote"
)

var (
	// ErrLocalPersistence means the local cache rejected a write. The
	// in-memory value is left unchanged.
	ErrLocalPersistence = errors.New("local cache write failed")
	// ErrRemoteUnavailable means no remote store is configured or the service is offline.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrIdentifierUnresolved means a member number has no remote row even
	// after upserting it from the local roster.
	ErrIdentifierUnresolved = errors.New("member identifier unresolved")
	// ErrUnknownResource is returned for a resource name the service does not own.
	ErrUnknownResource = errors.New("unknown resource")
)

// RemoteRequestError is a failed remote round-trip.
type RemoteRequestError = remote.RequestError

package download

import (
	"context"
	"errors"
)

// Sentinel errors for download operations
var (
	// ErrAlreadyInProgress indicates a download was requested for a key that
	// already has an active task
	ErrAlreadyInProgress = errors.New("download already in progress")

	// ErrTransportFailure indicates a network-layer error during fetch
	ErrTransportFailure = errors.New("transport failure")

	// ErrIntegrityFailure indicates a checksum or decompression mismatch
	ErrIntegrityFailure = errors.New("integrity failure")

	// ErrStorageFailure indicates a disk write or space error
	ErrStorageFailure = errors.New("storage failure")
)

// Failure kind tags persisted with a Failed download for diagnostics.
const (
	KindTransport   = "TransportFailure"
	KindIntegrity   = "IntegrityFailure"
	KindStorage     = "StorageFailure"
	KindInterrupted = "Interrupted"
)

// kindOf classifies an error into a diagnostic kind tag. Network timeouts
// count as transport failures.
func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrIntegrityFailure):
		return KindIntegrity
	case errors.Is(err, ErrStorageFailure):
		return KindStorage
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	return KindTransport
}

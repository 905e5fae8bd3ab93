package db

import (
	"errors"
	"fmt"

	"github.com/stevemurr/lifeos/store"
)

var (
	// ErrInitialization means the storage engine could not be opened,
	// upgraded or seeded. Nothing else can work until it is resolved.
	ErrInitialization = errors.New("store initialization failed")

	// ErrStorageQuotaExceeded means the engine rejected a write for lack
	// of space. Other operations may still succeed.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")

	// ErrTransactionFailure means a read or write did not complete. For
	// writes the data must be treated as unchanged.
	ErrTransactionFailure = errors.New("transaction failed")

	// ErrUnknownCollection is returned for names outside the schema.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnsupportedSchema is returned when stored data or an import
	// document was written by a newer schema version.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// classify maps an engine error onto the store's error kinds, keeping the
// engine error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrUnknownCollection), errors.Is(err, ErrInitialization),
		errors.Is(err, ErrStorageQuotaExceeded), errors.Is(err, ErrTransactionFailure):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, store.ErrFull):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageQuotaExceeded, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrTransactionFailure, err)
	}
}

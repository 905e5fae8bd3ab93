// Package blob stores the opaque JSON documents served by the sync blob
// service. Blobs are addressed by id and always overwritten whole.
package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Driver names a Store implementation.
type Driver string

const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

var (
	ErrNotFound  = errors.New("blob not found")
	ErrInvalidID = errors.New("invalid blob id")
)

// Info describes a stored blob.
type Info struct {
	ID       string
	Size     int64
	Modified time.Time
}

// Store is implemented by every driver. Implementations are safe for
// concurrent use.
type Store interface {
	Driver() Driver
	// Put creates or replaces the blob at id.
	Put(ctx context.Context, id string, data []byte) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) ([]byte, error)
	// Stat returns ErrNotFound for unknown ids.
	Stat(ctx context.Context, id string) (Info, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can address a blob. Ids are used verbatim as
// file names and object keys.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	// Dir is the root directory of the fs driver.
	Dir string
	S3  S3Config
}

// Open returns the Store described by cfg. The fs driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFSStore(cfg.Dir)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverS3:
		return NewS3Store(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unknown blob driver %q (want fs, memory or s3)", cfg.Driver)
}

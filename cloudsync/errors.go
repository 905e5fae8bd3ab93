package cloudsync

import "errors"

var (
	// ErrMissingSyncID means neither an explicit id nor a stored sync id
	// was available. No network call is made.
	ErrMissingSyncID = errors.New("no sync id")

	// ErrAllocation means the remote did not return a usable id for a new
	// blob.
	ErrAllocation = errors.New("remote did not allocate a blob")

	// ErrRemoteWrite means the remote rejected an overwrite.
	ErrRemoteWrite = errors.New("remote write failed")

	// ErrRemoteNotFound means the sync id does not resolve to a blob.
	ErrRemoteNotFound = errors.New("remote blob not found")

	// ErrMalformedPayload means a pulled blob is not an export document.
	ErrMalformedPayload = errors.New("malformed sync payload")

	// ErrSyncInProgress is returned when an operation starts while another
	// is still syncing.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Package cloudsync moves whole-dataset snapshots between the local store
// and a remote JSON blob identified by a sync id.
//
// A Controller runs one operation at a time. Its status goes from idle to
// syncing to success or error, then falls back to idle after a cool-down.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stevemurr/lifeos/db"
	"github.com/stevemurr/lifeos/metrics"
	"github.com/stevemurr/lifeos/prefs"
	"github.com/stevemurr/lifeos/schema"
)

// Status is the user-visible sync state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var allStatuses = []string{string(StatusIdle), string(StatusSyncing), string(StatusSuccess), string(StatusError)}

// Default cool-downs before the status returns to idle.
const (
	DefaultSuccessCooldown = 3 * time.Second
	DefaultErrorCooldown   = 5 * time.Second
)

// Snapshotter is the part of the local store the controller uses.
type Snapshotter interface {
	ExportAllData(ctx context.Context) (*db.ExportDocument, error)
	ImportAllData(ctx context.Context, doc *db.ExportDocument) error
}

// Snapshot is a point-in-time view of the controller state.
type Snapshot struct {
	Status  Status
	Message string
	SyncID  string
	// LastSyncTime is zero if no operation has succeeded yet.
	LastSyncTime time.Time
}

// Controller is safe for concurrent use.
type Controller struct {
	store  Snapshotter
	remote Remote
	prefs  prefs.Store

	mu      sync.Mutex
	status  Status
	message string
	timer   *time.Timer

	successCooldown time.Duration
	errorCooldown   time.Duration
	onReload        func()
	onStatus        func(Status)
	logger          *slog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithCooldowns sets how long success and error are shown before the
// status returns to idle.
func WithCooldowns(success, failure time.Duration) Option {
	return func(c *Controller) {
		c.successCooldown = success
		c.errorCooldown = failure
	}
}

// OnReload registers fn to run after a pull has replaced local data.
// Anything holding copies of store data must refresh them.
func OnReload(fn func()) Option {
	return func(c *Controller) { c.onReload = fn }
}

// OnStatus registers fn to observe every status change. It is called
// with the controller lock held and must not call back into it.
func OnStatus(fn func(Status)) Option {
	return func(c *Controller) { c.onStatus = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns an idle Controller. The sync id and last sync time live in p.
func New(store Snapshotter, remote Remote, p prefs.Store, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		remote:          remote,
		prefs:           p,
		status:          StatusIdle,
		successCooldown: DefaultSuccessCooldown,
		errorCooldown:   DefaultErrorCooldown,
		now:             time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.metrics.SyncStatus(string(StatusIdle), allStatuses)
	return c
}

// Status returns the current state. Failures reading the persisted fields
// are logged and leave those fields empty.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	s := Snapshot{Status: c.status, Message: c.message}
	c.mu.Unlock()

	id, err := c.prefs.Get(prefs.KeySyncID)
	if err != nil {
		c.logger.Warn("read sync id", "err", err)
	}
	s.SyncID = id
	raw, err := c.prefs.Get(prefs.KeyLastSyncTime)
	if err != nil {
		c.logger.Warn("read last sync time", "err", err)
	}
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.LastSyncTime = t
		}
	}
	return s
}

// SyncID returns the stored sync id, or "" if none is set.
func (c *Controller) SyncID() (string, error) {
	return c.prefs.Get(prefs.KeySyncID)
}

// SetSyncID links the controller to an existing remote blob. An empty id
// unlinks it.
func (c *Controller) SetSyncID(id string) error {
	return c.prefs.Set(prefs.KeySyncID, id)
}

// Create uploads the local data as a new remote blob and stores its id as
// the sync id.
func (c *Controller) Create(ctx context.Context) (string, error) {
	var id string
	err := c.run(ctx, "create", func(ctx context.Context) error {
		body, err := c.export(ctx)
		if err != nil {
			return err
		}
		id, err = c.remote.Create(ctx, body)
		if err != nil {
			return err
		}
		if id == "" {
			return ErrAllocation
		}
		if err := c.prefs.Set(prefs.KeySyncID, id); err != nil {
			return fmt.Errorf("store sync id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Push overwrites the remote blob with the local data. An empty targetID
// uses the stored sync id.
func (c *Controller) Push(ctx context.Context, targetID string) error {
	return c.run(ctx, "push", func(ctx context.Context) error {
		id, err := c.resolve(targetID)
		if err != nil {
			return err
		}
		body, err := c.export(ctx)
		if err != nil {
			return err
		}
		return c.remote.Write(ctx, id, body)
	})
}

// Pull replaces local data with the remote blob. An empty targetID uses
// the stored sync id; an explicit one becomes the stored sync id once the
// pull succeeds. The local store is untouched unless the blob was fetched
// and validated.
func (c *Controller) Pull(ctx context.Context, targetID string) error {
	err := c.run(ctx, "pull", func(ctx context.Context) error {
		id, err := c.resolve(targetID)
		if err != nil {
			return err
		}
		body, err := c.remote.Read(ctx, id)
		if err != nil {
			return err
		}
		doc, err := decodePayload(body)
		if err != nil {
			return err
		}
		if err := c.store.ImportAllData(ctx, doc); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if targetID != "" {
			if err := c.prefs.Set(prefs.KeySyncID, targetID); err != nil {
				return fmt.Errorf("store sync id: %w", err)
			}
		}
		return nil
	})
	if err == nil && c.onReload != nil {
		c.onReload()
	}
	return err
}

// Close cancels a pending return to idle.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) resolve(targetID string) (string, error) {
	if targetID != "" {
		return targetID, nil
	}
	id, err := c.prefs.Get(prefs.KeySyncID)
	if err != nil {
		return "", fmt.Errorf("read sync id: %w", err)
	}
	if id == "" {
		return "", ErrMissingSyncID
	}
	return id, nil
}

func (c *Controller) export(ctx context.Context) ([]byte, error) {
	doc, err := c.store.ExportAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return json.Marshal(doc)
}

func decodePayload(body []byte) (*db.ExportDocument, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := schema.ValidateExport(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var doc db.ExportDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &doc, nil
}

// run executes op under the re-entrancy guard and drives the status
// through syncing to success or error.
func (c *Controller) run(ctx context.Context, action string, op func(context.Context) error) error {
	if err := c.begin(); err != nil {
		return err
	}
	started := c.now()
	err := op(ctx)
	if err == nil {
		if serr := c.prefs.Set(prefs.KeyLastSyncTime, c.now().UTC().Format(time.RFC3339)); serr != nil {
			c.logger.Warn("store last sync time", "err", serr)
		}
	}
	c.finish(action, err)
	c.metrics.SyncOp(action, started, err)
	if err != nil {
		c.logger.Error("sync failed", "action", action, "err", err)
		return fmt.Errorf("%s: %w", action, err)
	}
	c.logger.Info("sync succeeded", "action", action, "elapsed", c.now().Sub(started).Round(time.Millisecond))
	return nil
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusSyncing {
		return ErrSyncInProgress
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.setStatus(StatusSyncing, "")
	return nil
}

func (c *Controller) finish(action string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cooldown := c.successCooldown
	if err != nil {
		cooldown = c.errorCooldown
		c.setStatus(StatusError, userMessage(action, err))
	} else {
		c.setStatus(StatusSuccess, action+" complete")
	}
	var t *time.Timer
	t = time.AfterFunc(cooldown, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A newer operation owns the status once it has replaced the timer.
		if c.timer != t {
			return
		}
		c.timer = nil
		c.setStatus(StatusIdle, "")
	})
	c.timer = t
}

// setStatus must be called with mu held.
func (c *Controller) setStatus(s Status, msg string) {
	c.status = s
	c.message = msg
	c.metrics.SyncStatus(string(s), allStatuses)
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func userMessage(action string, err error) string {
	switch {
	case errors.Is(err, ErrMissingSyncID):
		return "no sync id; create one or connect an existing id"
	case errors.Is(err, ErrAllocation):
		return "the sync service did not return an id"
	case errors.Is(err, ErrRemoteNotFound):
		return "no data found for this sync id"
	case errors.Is(err, ErrRemoteWrite):
		return "the sync service rejected the upload"
	case errors.Is(err, ErrMalformedPayload):
		return "the synced data is not a valid backup"
	case errors.Is(err, db.ErrStorageQuotaExceeded):
		return "local storage is full"
	}
	return action + " failed: " + err.Error()
}

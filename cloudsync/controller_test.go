package cloudsync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stevemurr/lifeos/cloudsync"
	"github.com/stevemurr/lifeos/db"
	"github.com/stevemurr/lifeos/metrics"
	"github.com/stevemurr/lifeos/prefs"
	"github.com/stevemurr/lifeos/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDB(t *testing.T) *db.DB {
	t.Helper()
	d := db.NewWithEngine(store.NewMemoryStore(), db.WithLogger(quietLogger()))
	if err := d.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d
}

// recorder collects every status the controller passes through.
type recorder struct {
	mu   sync.Mutex
	seen []cloudsync.Status
}

func (r *recorder) record(s cloudsync.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) statuses() []cloudsync.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cloudsync.Status(nil), r.seen...)
}

func newController(t *testing.T, d cloudsync.Snapshotter, remote cloudsync.Remote, p prefs.Store, opts ...cloudsync.Option) (*cloudsync.Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]cloudsync.Option{
		cloudsync.WithLogger(quietLogger()),
		cloudsync.WithCooldowns(20*time.Millisecond, 30*time.Millisecond),
		cloudsync.OnStatus(rec.record),
	}, opts...)
	c := cloudsync.New(d, remote, p, opts...)
	t.Cleanup(c.Close)
	return c, rec
}

func waitForIdle(t *testing.T, c *cloudsync.Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().Status == cloudsync.StatusIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status stuck at %s", c.Status().Status)
}

// countingServer answers every request with status and body, counting hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestPushWithoutSyncIDMakesNoNetworkCall(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{}`)
	c, rec := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), prefs.NewMemoryStore())

	err := c.Push(context.Background(), "")
	if !errors.Is(err, cloudsync.ErrMissingSyncID) {
		t.Fatalf("expected ErrMissingSyncID, got %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
	if err := c.Pull(context.Background(), ""); !errors.Is(err, cloudsync.ErrMissingSyncID) {
		t.Fatalf("expected ErrMissingSyncID from pull, got %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
	if got := c.Status(); got.Status != cloudsync.StatusError || got.Message == "" {
		t.Fatalf("expected error status with message, got %+v", got)
	}
	waitForIdle(t, c)
	want := []cloudsync.Status{"syncing", "error", "syncing", "error", "idle"}
	if diff := cmp.Diff(want, rec.statuses()); diff != "" {
		t.Fatalf("status sequence (-want +got):\n%s", diff)
	}
}

func TestPushSuccessReturnsToIdle(t *testing.T) {
	uploads := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/abc123" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		uploads <- b
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := prefs.NewMemoryStore()
	p.Set(prefs.KeySyncID, "abc123")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c, rec := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), p,
		cloudsync.WithClock(func() time.Time { return fixed }))

	if err := c.Push(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if got := <-uploads; len(got) == 0 {
		t.Fatal("expected an uploaded export document")
	}
	snap := c.Status()
	if snap.Status != cloudsync.StatusSuccess {
		t.Fatalf("expected success right after push, got %s", snap.Status)
	}
	if !snap.LastSyncTime.Equal(fixed) || snap.SyncID != "abc123" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	waitForIdle(t, c)
	want := []cloudsync.Status{"syncing", "success", "idle"}
	if diff := cmp.Diff(want, rec.statuses()); diff != "" {
		t.Fatalf("status sequence (-want +got):\n%s", diff)
	}
}

func TestPushRejectedByRemote(t *testing.T) {
	srv, _ := countingServer(t, http.StatusInternalServerError, `{"detail":"boom"}`)
	c, _ := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), prefs.NewMemoryStore())
	err := c.Push(context.Background(), "abc123")
	if !errors.Is(err, cloudsync.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
}

func TestPullNotFoundLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	srv, _ := countingServer(t, http.StatusNotFound, `{"detail":"not found"}`)
	d := newDB(t)
	before, err := d.ExportAllData(ctx)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := false
	p := prefs.NewMemoryStore()
	c, rec := newController(t, d, cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), p,
		cloudsync.OnReload(func() { reloaded = true }))

	err = c.Pull(ctx, "missing")
	if !errors.Is(err, cloudsync.ErrRemoteNotFound) {
		t.Fatalf("expected ErrRemoteNotFound, got %v", err)
	}
	if reloaded {
		t.Fatal("reload must not run after a failed pull")
	}
	if id, _ := p.Get(prefs.KeySyncID); id != "" {
		t.Fatalf("failed pull must not link the id, got %q", id)
	}
	after, err := d.ExportAllData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before.Collections, after.Collections); diff != "" {
		t.Fatalf("store changed (-before +after):\n%s", diff)
	}
	waitForIdle(t, c)
	want := []cloudsync.Status{"syncing", "error", "idle"}
	if diff := cmp.Diff(want, rec.statuses()); diff != "" {
		t.Fatalf("status sequence (-want +got):\n%s", diff)
	}
}

func TestPullRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"not an object", `[1,2,3]`},
		{"record without key", `{"goals":[{"title":"no id"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, http.StatusOK, tt.body)
			d := newDB(t)
			c, _ := newController(t, d, cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), prefs.NewMemoryStore())
			err := c.Pull(ctx, "abc")
			if !errors.Is(err, cloudsync.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
			n, _ := d.Count(ctx, db.Goals)
			if n != 1 {
				t.Fatalf("goals changed, count %d", n)
			}
		})
	}
}

func TestPullImportsAndLinksExplicitID(t *testing.T) {
	ctx := context.Background()
	srv, _ := countingServer(t, http.StatusOK, `{
		"schemaVersion": 2,
		"timestamp": "2024-05-01T12:00:00.000Z",
		"goals": [{"id": "g2", "title": "Learn Go", "category": "career", "progress": 10, "targetDate": "2025-01-01"}],
		"carMileage": 61000
	}`)
	d := newDB(t)
	reloads := 0
	p := prefs.NewMemoryStore()
	c, _ := newController(t, d, cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), p,
		cloudsync.OnReload(func() { reloads++ }))

	if err := c.Pull(ctx, "shared-id"); err != nil {
		t.Fatal(err)
	}
	if reloads != 1 {
		t.Fatalf("expected one reload, got %d", reloads)
	}
	if id, _ := p.Get(prefs.KeySyncID); id != "shared-id" {
		t.Fatalf("expected explicit id to be stored, got %q", id)
	}
	goals, err := d.GetAll(ctx, db.Goals)
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 2 || goals[1]["id"] != "g2" {
		t.Fatalf("expected pulled goal upserted next to the seed, got %v", goals)
	}
	mileage, _ := d.GetSetting(ctx, db.SettingCarMileage)
	if mileage != float64(61000) {
		t.Fatalf("expected mileage setting imported, got %v", mileage)
	}
}

func TestCreateStoresSyncID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new-bin"}`))
	}))
	defer srv.Close()

	p := prefs.NewMemoryStore()
	c, _ := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), p)
	id, err := c.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "new-bin" {
		t.Fatalf("expected new-bin, got %q", id)
	}
	if stored, _ := c.SyncID(); stored != "new-bin" {
		t.Fatalf("expected stored id, got %q", stored)
	}
	if c.Status().LastSyncTime.IsZero() {
		t.Fatal("expected last sync time to be set")
	}
}

func TestCreateWithoutIDFails(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"message":"ok"}`)
	p := prefs.NewMemoryStore()
	c, _ := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), p)
	_, err := c.Create(context.Background())
	if !errors.Is(err, cloudsync.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if id, _ := p.Get(prefs.KeySyncID); id != "" {
		t.Fatalf("no id should be stored, got %q", id)
	}
	if !c.Status().LastSyncTime.IsZero() {
		t.Fatal("failed create must not set last sync time")
	}
}

// blockingRemote holds Read until release is closed.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Create(context.Context, []byte) (string, error) { return "x", nil }
func (b *blockingRemote) Write(context.Context, string, []byte) error    { return nil }
func (b *blockingRemote) Read(ctx context.Context, id string) ([]byte, error) {
	close(b.entered)
	<-b.release
	return []byte(`{}`), nil
}

func TestOperationsDoNotOverlap(t *testing.T) {
	remote := &blockingRemote{entered: make(chan struct{}), release: make(chan struct{})}
	c, _ := newController(t, newDB(t), remote, prefs.NewMemoryStore())

	done := make(chan error, 1)
	go func() { done <- c.Pull(context.Background(), "abc") }()
	<-remote.entered

	if err := c.Push(context.Background(), "abc"); !errors.Is(err, cloudsync.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if _, err := c.Create(context.Background()); !errors.Is(err, cloudsync.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if c.Status().Status != cloudsync.StatusSyncing {
		t.Fatal("rejected calls must not disturb the running operation")
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := c.Push(context.Background(), "abc"); err != nil {
		t.Fatalf("push after pull finished: %v", err)
	}
}

func TestNewOperationKeepsStatusDuringCooldown(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{}`)
	c, _ := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), prefs.NewMemoryStore(),
		cloudsync.WithCooldowns(100*time.Millisecond, 100*time.Millisecond))

	if err := c.Push(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := c.Push(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	// The first cool-down would have ended by now; the second has not.
	time.Sleep(60 * time.Millisecond)
	if s := c.Status().Status; s != cloudsync.StatusSuccess {
		t.Fatalf("expected success to hold for the second cool-down, got %s", s)
	}
	waitForIdle(t, c)
}

func TestSyncOperationsAreCounted(t *testing.T) {
	ctx := context.Background()
	srv, _ := countingServer(t, http.StatusOK, `{}`)
	reg := prometheus.NewRegistry()
	c, _ := newController(t, newDB(t), cloudsync.NewHTTPRemote(srv.URL, srv.Client(), 0), prefs.NewMemoryStore(),
		cloudsync.WithMetrics(metrics.New(reg)))

	if err := c.Push(ctx, ""); !errors.Is(err, cloudsync.ErrMissingSyncID) {
		t.Fatalf("expected ErrMissingSyncID, got %v", err)
	}
	if err := c.SetSyncID("abc"); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(ctx, ""); err != nil {
		t.Fatal(err)
	}

	want := `
# HELP lifeos_sync_operations_total Cloud sync operations by action and result.
# TYPE lifeos_sync_operations_total counter
lifeos_sync_operations_total{action="push",result="error"} 1
lifeos_sync_operations_total{action="push",result="ok"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "lifeos_sync_operations_total"); err != nil {
		t.Fatal(err)
	}
	n, err := testutil.GatherAndCount(reg, "lifeos_sync_status")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected one status series per state, got %d", n)
	}
}

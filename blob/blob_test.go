package blob_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stevemurr/lifeos/blob"
)

func runBlobTests(t *testing.T, s blob.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.Stat(ctx, "nope"); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Stat, got %v", err)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		body := []byte(`{"goals":[{"id":"1"}]}`)
		if err := s.Put(ctx, "bin1", body); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "bin1")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("got %s, want %s", got, body)
		}
		info, err := s.Stat(ctx, "bin1")
		if err != nil {
			t.Fatal(err)
		}
		if info.ID != "bin1" || info.Size != int64(len(body)) {
			t.Fatalf("unexpected info %+v", info)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := s.Put(ctx, "bin2", []byte(`{"v":1}`)); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, "bin2", []byte(`{"v":2}`)); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "bin2")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != `{"v":2}` {
			t.Fatalf("expected overwrite, got %s", got)
		}
	})

	t.Run("InvalidID", func(t *testing.T) {
		for _, id := range []string{"", "../escape", "a/b", "with space"} {
			if err := s.Put(ctx, id, []byte(`{}`)); !errors.Is(err, blob.ErrInvalidID) {
				t.Fatalf("Put(%q): expected ErrInvalidID, got %v", id, err)
			}
			if _, err := s.Get(ctx, id); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("Get(%q): expected ErrNotFound, got %v", id, err)
			}
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runBlobTests(t, blob.NewMemoryStore())
}

func TestFSStore(t *testing.T) {
	s, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runBlobTests(t, s)
}

func TestFSStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := blob.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(context.Background(), "abc", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "abc.json" {
		t.Fatalf("expected only abc.json, got %v", entries)
	}
	if _, err := os.Stat(filepath.Join(dir, "abc.json")); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := blob.NewMemoryStore()
	body := []byte(`{"a":1}`)
	if err := s.Put(ctx, "x", body); err != nil {
		t.Fatal(err)
	}
	body[2] = 'b'
	got, _ := s.Get(ctx, "x")
	got[3] = 'c'
	again, _ := s.Get(ctx, "x")
	if string(again) != `{"a":1}` {
		t.Fatalf("stored blob was aliased: %s", again)
	}
}

// fakeS3 answers the path-style object requests the s3 driver makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	respond := func(code int, body string, h http.Header) *http.Response {
		if h == nil {
			h = http.Header{}
		}
		return &http.Response{StatusCode: code, Header: h, Body: io.NopCloser(strings.NewReader(body)), Request: req}
	}
	notFound := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`

	switch req.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(req.Body)
		f.objects[key] = b
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, notFound, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return respond(http.StatusOK, string(b), http.Header{"Content-Type": {"application/json"}}), nil
	case http.MethodHead:
		b, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		return respond(http.StatusOK, "", http.Header{
			"Content-Length": {strconv.Itoa(len(b))},
			"Last-Modified":  {"Mon, 01 Jan 2024 00:00:00 GMT"},
		}), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func newFakeS3Store(t *testing.T) (*blob.S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	s, err := blob.NewS3Store(context.Background(), blob.S3Config{
		Bucket:          "lifeos-test",
		Region:          "us-east-1",
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, fake
}

func TestS3Store(t *testing.T) {
	s, _ := newFakeS3Store(t)
	runBlobTests(t, s)
}

func TestS3StoreKeys(t *testing.T) {
	s, fake := newFakeS3Store(t)
	if err := s.Put(context.Background(), "abc", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["blobs/abc.json"]; !ok {
		t.Fatalf("expected object under blobs/abc.json, have %v", fake.objects)
	}
}

func TestS3StoreRequiresBucket(t *testing.T) {
	if _, err := blob.NewS3Store(context.Background(), blob.S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		cfg     blob.Config
		want    blob.Driver
		wantErr bool
	}{
		{blob.Config{Dir: t.TempDir()}, blob.DriverFilesystem, false},
		{blob.Config{Driver: blob.DriverMemory}, blob.DriverMemory, false},
		{blob.Config{Driver: "ftp"}, "", true},
		{blob.Config{Driver: blob.DriverS3}, "", true},
	}
	for _, tt := range tests {
		s, err := blob.Open(ctx, tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("Open(%+v): expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if s.Driver() != tt.want {
			t.Fatalf("Open(%+v): driver %s, want %s", tt.cfg, s.Driver(), tt.want)
		}
	}
}

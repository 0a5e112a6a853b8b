package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
	err    error
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(_ context.Context, dstPath string) error {
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, f.data, 0644)
}

func testSources() []Source {
	return []Source{
		{Name: "records", Ext: ".duckdb", Store: &fakeSnapshotter{dbPath: "/tmp/gitgrid.duckdb", data: []byte("records")}},
		{Name: "filters", Ext: "db", Store: &fakeSnapshotter{dbPath: "/tmp/filters.db", data: []byte("filters")}},
	}
}

func TestNewManager_Disabled(t *testing.T) {
	t.Parallel()

	m, err := NewManager(testSources(), Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func TestNewManager_EnabledRequiresDBPath(t *testing.T) {
	t.Parallel()

	_, err := NewManager([]Source{{Name: "records", Store: &fakeSnapshotter{}}}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for in-memory database")
	}

	_, err = NewManager(nil, Config{Enabled: true, LocalDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error without sources")
	}
}

func TestRunOnce_CreatesAndPrunesLocalBackups(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	m := &Manager{
		sources: testSources(),
		cfg: Config{
			Enabled:  true,
			LocalDir: localDir,
			KeepLast: 2,
		},
	}

	for i := 0; i < 3; i++ {
		if err := m.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
	}

	for pattern, want := range map[string]int{"records-*.duckdb": 2, "filters-*.db": 2} {
		files, err := filepath.Glob(filepath.Join(localDir, pattern))
		if err != nil {
			t.Fatalf("glob backups: %v", err)
		}
		if len(files) != want {
			t.Fatalf("%s files = %d, want %d", pattern, len(files), want)
		}
	}
}

func TestRunOnce_OneSourceFailing(t *testing.T) {
	t.Parallel()

	localDir := t.TempDir()
	sources := testSources()
	sources[0].Store = &fakeSnapshotter{dbPath: "/tmp/gitgrid.duckdb", err: errors.New("disk full")}
	m := &Manager{sources: sources, cfg: Config{Enabled: true, LocalDir: localDir, KeepLast: 2}}

	err := m.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "records") {
		t.Fatalf("err = %v, want records failure", err)
	}
	files, _ := filepath.Glob(filepath.Join(localDir, "filters-*.db"))
	if len(files) != 1 {
		t.Fatalf("filters snapshot missing: %v", files)
	}
}

type blockingUploader struct {
	started chan struct{}
	once    sync.Once
}

func (u *blockingUploader) UploadFile(ctx context.Context, _ string) error {
	u.once.Do(func() { close(u.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestStop_CancelsInFlightUpload(t *testing.T) {
	t.Parallel()

	uploader := &blockingUploader{started: make(chan struct{})}
	m := &Manager{
		sources: testSources(),
		cfg: Config{
			Enabled:  true,
			Interval: 5 * time.Millisecond,
			LocalDir: t.TempDir(),
			KeepLast: 2,
		},
		uploader: uploader,
		done:     make(chan struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop()

	select {
	case <-uploader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload to start")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; upload likely not canceled")
	}
}

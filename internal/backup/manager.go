package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24
)

// Manager snapshots the record and filter databases on an interval and
// optionally uploads each snapshot.
type Manager struct {
	sources  []Source
	cfg      Config
	uploader Uploader

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager validates cfg, takes a startup snapshot and starts the loop.
// It returns nil when backups are disabled.
func NewManager(sources []Source, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("backup: no databases to snapshot")
	}
	for _, src := range sources {
		if src.Store == nil || strings.TrimSpace(src.Name) == "" {
			return nil, fmt.Errorf("backup: invalid source %q", src.Name)
		}
		if strings.TrimSpace(src.Store.DBPath()) == "" {
			return nil, fmt.Errorf("backup: %s database is in-memory", src.Name)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	m := &Manager{
		sources:  sources,
		cfg:      cfg,
		uploader: uploader,
		done:     make(chan struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.RunOnce(m.ctx); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce snapshots every source, uploads the files when configured and
// prunes old local copies. A failing source does not stop the others.
func (m *Manager) RunOnce(ctx context.Context) error {
	stamp := time.Now().UTC().Format("20060102-150405.000000000")
	var errs []error
	for _, src := range m.sources {
		if err := m.backupSource(ctx, src, stamp); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) backupSource(ctx context.Context, src Source, stamp string) error {
	localPath := filepath.Join(m.cfg.LocalDir, fmt.Sprintf("%s-%s%s", src.Name, stamp, src.ext()))

	if err := src.Store.SnapshotTo(ctx, localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", localPath)

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		log.Printf("backup: uploaded snapshot %s", filepath.Base(localPath))
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, src.Name+"-*"+src.ext(), m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	return nil
}

func (s Source) ext() string {
	if s.Ext == "" {
		return ".db"
	}
	if !strings.HasPrefix(s.Ext, ".") {
		return "." + s.Ext
	}
	return s.Ext
}

// Stop cancels any in-flight upload and terminates the loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.done)
	m.wg.Wait()
}

func pruneLocalBackups(localDir, pattern string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, pattern))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	// The timestamp in the name sorts chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

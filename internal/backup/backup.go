// Package backup snapshots the SQLite database on a schedule, encrypts
// the snapshot, and uploads it to object storage.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// objectStore is the slice of storage the manager needs.
type objectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Config holds backup manager configuration.
type Config struct {
	// Passphrase encrypts snapshots. Empty disables backups.
	Passphrase string
	// Prefix is the object key prefix, e.g. "backups".
	Prefix string
	// Interval between snapshots. Defaults to 24h.
	Interval time.Duration
	// Keep is how many snapshots to retain. Defaults to 14.
	Keep int
}

// Manager runs the scheduled snapshot loop.
type Manager struct {
	cfg     Config
	db      *sql.DB
	objects objectStore
	logger  *slog.Logger

	mu   sync.Mutex
	keys []string // uploaded this process, oldest first

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, objects objectStore, logger *slog.Logger) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "backups"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 14
	}
	return &Manager{cfg: cfg, db: db, objects: objects, logger: logger}
}

// Enabled reports whether the manager has everything it needs to run.
func (m *Manager) Enabled() bool {
	return m.cfg.Passphrase != "" && m.objects != nil
}

// Start begins the snapshot loop. No-op when disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

// Run takes one snapshot now and returns its object key.
func (m *Manager) Run(ctx context.Context) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("backups not configured")
	}

	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("pixelproof-backup-%d.db", time.Now().UnixNano()))
	defer os.Remove(tmp)

	// VACUUM INTO writes a consistent single-file snapshot even with
	// WAL mode active, no checkpoint dance needed.
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}

	plaintext, err := os.ReadFile(tmp)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	enc, err := Encrypt(plaintext, m.cfg.Passphrase)
	if err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/backup-%s.db.enc", m.cfg.Prefix, time.Now().UTC().Format("2006-01-02T150405Z"))
	if err := m.objects.Put(ctx, key, enc, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	m.logger.Info("backup uploaded", "key", key, "size", len(enc))

	m.remember(ctx, key)
	return key, nil
}

// remember records the key and prunes snapshots beyond the retention count.
func (m *Manager) remember(ctx context.Context, key string) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	sort.Strings(m.keys) // timestamped names sort chronologically
	var stale []string
	if n := len(m.keys) - m.cfg.Keep; n > 0 {
		stale = append(stale, m.keys[:n]...)
		m.keys = append([]string(nil), m.keys[n:]...)
	}
	m.mu.Unlock()

	for _, k := range stale {
		if err := m.objects.Delete(ctx, k); err != nil {
			m.logger.Warn("prune old backup", "key", k, "error", err)
		}
	}
}

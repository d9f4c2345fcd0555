package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookswap/internal/config"

	"github.com/rs/zerolog"
)

const snapshotPrefix = "bookswap_"

// SnapshotService writes periodic online copies of the store with VACUUM INTO.
type SnapshotService struct {
	db     *DB
	cfg    config.BackupConfig
	logger *zerolog.Logger
}

func NewSnapshotService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *SnapshotService {
	l := logger.With().Str("component", "snapshots").Logger()
	return &SnapshotService{db: db, cfg: cfg, logger: &l}
}

func (s *SnapshotService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("snapshots disabled")
		return
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.logger.Info().Dur("interval", interval).Str("dir", s.cfg.StoragePath).Msg("snapshot service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Snapshot(ctx); err != nil {
			s.logger.Error().Err(err).Msg("snapshot failed")
		}
		s.Prune(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Snapshot writes a consistent copy of the database and returns its path.
func (s *SnapshotService) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := snapshotPrefix + time.Now().UTC().Format("20060102_150405.000") + ".db"
	path := filepath.Join(s.cfg.StoragePath, name)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("snapshot written")
	return path, nil
}

// Prune removes snapshots older than the retention window.
func (s *SnapshotService) Prune(at time.Time) int {
	if s.cfg.RetentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read snapshot directory")
		return 0
	}

	cutoff := at.AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), snapshotPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("failed to remove snapshot")
			continue
		}
		removed++
	}
	return removed
}

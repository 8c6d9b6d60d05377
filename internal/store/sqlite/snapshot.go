package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotConfig controls periodic file-level snapshots of the embedded
// database.
type SnapshotConfig struct {
	Enabled       bool
	Interval      time.Duration
	StoragePath   string
	RetentionDays int
}

// SnapshotService periodically copies the backup database file aside so
// a corrupted fallback store can be restored by hand.
type SnapshotService struct {
	dbPath string
	config SnapshotConfig
	logger *zerolog.Logger
}

func NewSnapshotService(dbPath string, cfg SnapshotConfig, logger *zerolog.Logger) *SnapshotService {
	return &SnapshotService{dbPath: dbPath, config: cfg, logger: logger}
}

// Run blocks until ctx is cancelled, taking a snapshot immediately and
// then on every interval tick.
func (s *SnapshotService) Run(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("snapshot service disabled")
		return
	}

	s.logger.Info().Dur("interval", s.config.Interval).Msg("snapshot service started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Perform(); err != nil {
		s.logger.Error().Err(err).Msg("initial snapshot failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Perform(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled snapshot failed")
			}
			s.CleanupOld()
		}
	}
}

// Perform copies the database file into the snapshot directory.
func (s *SnapshotService) Perform() error {
	if _, err := os.Stat(s.config.StoragePath); os.IsNotExist(err) {
		if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	timestamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("snapshot_%s.db", timestamp)
	dest := filepath.Join(s.config.StoragePath, name)

	s.logger.Info().Str("path", dest).Msg("taking database snapshot")

	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	s.logger.Info().Msg("snapshot completed")
	return nil
}

// CleanupOld removes snapshots older than the retention window.
func (s *SnapshotService) CleanupOld() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("read snapshot directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting old snapshot")
			os.Remove(filepath.Join(s.config.StoragePath, file.Name()))
		}
	}
}

package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists uploaded scans. Save returns the location reported back
// to the client.
type Store interface {
	Save(ctx context.Context, ext string, body io.Reader, size int64, contentType string) (string, error)
}

// NewKey names an upload. Client supplied file names are never used as
// paths.
func NewKey(ext string) string {
	return uuid.New().String() + "." + ext
}

type localStore struct {
	dir string
	log *zap.Logger
}

func NewLocalStore(dir string, log *zap.Logger) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &localStore{dir: dir, log: log}, nil
}

func (s *localStore) Save(ctx context.Context, ext string, body io.Reader, size int64, contentType string) (string, error) {
	path := filepath.Join(s.dir, NewKey(ext))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.log.Info("Upload stored",
		zap.String("path", path),
		zap.Int64("size", written))

	return path, nil
}

// Sweep removes files in dir last modified before now-maxAge and returns
// how many were removed.
func Sweep(dir string, maxAge time.Duration, now time.Time, log *zap.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("Failed to remove expired upload", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, dir string, maxAge, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := Sweep(dir, maxAge, now, log)
			if err != nil {
				log.Error("Upload sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("Expired uploads removed", zap.Int("count", removed))
			}
		}
	}
}

package intake

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Janitor periodically deletes stored uploads older than the retention
// period.
type Janitor struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewJanitor creates a janitor for dir. Non-positive durations fall back
// to 24h retention and a 1h sweep interval.
func NewJanitor(dir string, retention, interval time.Duration) *Janitor {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{dir: dir, retention: retention, interval: interval, now: time.Now}
}

// Run sweeps once immediately, then every interval. It blocks until ctx is
// cancelled and always returns nil so it can run under an errgroup.
func (j *Janitor) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "intake.janitor"))
	log.Info("starting upload janitor",
		zap.String("dir", j.dir),
		zap.Duration("retention", j.retention),
		zap.Duration("interval", j.interval),
	)

	j.sweep(log)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("upload janitor stopped")
			return nil
		case <-ticker.C:
			j.sweep(log)
		}
	}
}

func (j *Janitor) sweep(log *zap.Logger) {
	removed, err := j.Sweep()
	if err != nil {
		log.Error("intake: janitor sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		log.Info("intake: removed expired uploads", zap.Int("removed", removed))
	}
}

// Sweep removes regular files in dir whose modification time is older
// than the retention period and returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "intake: read upload dir %s", j.dir)
	}

	cutoff := j.now().Add(-j.retention)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("intake: remove expired upload", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Janitor deletes recording and synthesized-audio files that outlived their
// call, e.g. after a crash skipped per-turn cleanup.
type Janitor struct {
	dirs      []string
	retention time.Duration
	clock     func() time.Time
	log       *slog.Logger
}

func NewJanitor(dirs []string, retention time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{dirs: dirs, retention: retention, clock: time.Now, log: log}
}

func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := j.Sweep(); n > 0 {
				j.log.Info("stale call artifacts removed", "count", n)
			}
		}
	}
}

// Sweep removes rec_*.wav and tts_*.wav files older than the retention period.
func (j *Janitor) Sweep() int {
	cutoff := j.clock().Add(-j.retention)
	n := 0
	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.log.Warn("artifact dir unreadable", "dir", dir, "err", err)
			}
			continue
		}
		for _, ent := range entries {
			name := ent.Name()
			if ent.IsDir() || !isArtifact(name) {
				continue
			}
			fi, err := ent.Info()
			if err != nil || !fi.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				j.log.Warn("artifact not removed", "file", name, "err", err)
				continue
			}
			n++
		}
	}
	return n
}

func isArtifact(name string) bool {
	if !strings.HasSuffix(name, ".wav") {
		return false
	}
	return strings.HasPrefix(name, "rec_") || strings.HasPrefix(name, "tts_")
}

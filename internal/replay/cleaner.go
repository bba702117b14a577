package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
)

// RetentionPolicy defines how many recordings are retained on disk.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises the disk footprint of retained recordings.
type StorageStats struct {
	Sessions  int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner prunes recording directories under root according to a policy.
type Cleaner struct {
	mu      sync.RWMutex
	dir     string
	policy  RetentionPolicy
	log     *logging.Logger
	now     func() time.Time
	protect func(path string) bool
	stats   StorageStats
}

// NewCleaner constructs a cleaner for the recordings root. protect may be nil;
// when set, directories it accepts (the active session) are never removed.
func NewCleaner(dir string, policy RetentionPolicy, protect func(path string) bool, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{
		dir:     dir,
		policy:  policy,
		log:     logger.With(logging.String("component", "recording_retention")),
		now:     time.Now,
		protect: protect,
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.RunOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs a single sweep.
func (c *Cleaner) RunOnce() {
	if strings.TrimSpace(c.dir) == "" {
		return
	}
	sessions, err := c.collect()
	if err != nil {
		c.log.Warn("recording retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	now := c.now()
	kept := 0
	stats := StorageStats{LastSweep: now}
	for _, session := range sessions {
		protected := c.protect != nil && c.protect(session.path)
		if reason := c.removalReason(session, now, kept); reason != "" && !protected {
			if err := os.RemoveAll(session.path); err != nil {
				c.log.Warn("recording retention removal failed", logging.Error(err), logging.String("session", session.name))
			} else {
				c.log.Info("recording retention removed session", logging.String("session", session.name), logging.String("reason", reason))
				stats.Removed++
				continue
			}
		}
		kept++
		stats.Sessions++
		stats.Bytes += session.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// Stats returns the statistics from the last sweep.
func (c *Cleaner) Stats() StorageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type session struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

// collect lists recording directories newest first. Only directories holding a
// manifest are considered recordings.
func (c *Cleaner) collect() ([]session, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, eris.Wrap(err, "read recordings root")
	}
	sessions := make([]session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		manifest, err := os.Stat(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}
		size, modTime, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("recording retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		if manifest.ModTime().After(modTime) {
			modTime = manifest.ModTime()
		}
		sessions = append(sessions, session{name: entry.Name(), path: path, size: size, modTime: modTime})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].modTime.After(sessions[j].modTime) })
	return sessions, nil
}

func (c *Cleaner) removalReason(s session, now time.Time, kept int) string {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(s.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return strings.Join(reasons, ", ")
}

// directoryUsage returns the total file size under root and the newest file
// modification time.
func directoryUsage(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return total, newest, err
}

package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClearDir empties the cache directory and recreates it.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeByAge removes entries saved more than maxAge ago, judged by the SavedAt
// field of each <key>.meta.json, and bodies whose metadata is gone. It returns
// the number of entries removed. A non-positive maxAge disables purging.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	now := time.Now().UTC()
	removed := 0
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(name, ".meta.json"):
			stem := strings.TrimSuffix(name, ".meta.json")
			b, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			var e HTTPEntry
			if err := json.Unmarshal(b, &e); err != nil {
				continue
			}
			if now.Sub(e.SavedAt) <= maxAge {
				continue
			}
			_ = os.Remove(filepath.Join(dir, name))
			_ = os.Remove(filepath.Join(dir, stem+".body"))
			removed++
		case strings.HasSuffix(name, ".body"):
			stem := strings.TrimSuffix(name, ".body")
			if _, err := os.Stat(filepath.Join(dir, stem+".meta.json")); errors.Is(err, os.ErrNotExist) {
				_ = os.Remove(filepath.Join(dir, name))
				removed++
			}
		}
	}
	return removed, nil
}

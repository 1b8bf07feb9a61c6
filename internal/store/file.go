package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var safeKeyRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// FileStore keeps one <key>.json file per key under Dir. Writes go through
// a temporary file and a rename so readers never see partial values.
type FileStore struct {
	Dir string
	// StrictPerms enforces 0700 on the directory and 0600 on files.
	StrictPerms bool
}

func (s *FileStore) ensureDir() error {
	if s == nil || s.Dir == "" {
		return errors.New("store dir not configured")
	}
	perm := os.FileMode(0o755)
	if s.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(s.Dir, perm); err != nil {
		return err
	}
	// If directory already existed and StrictPerms is on, tighten perms
	if s.StrictPerms {
		if info, err := os.Stat(s.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(s.Dir, 0o700)
		}
	}
	return nil
}

// fileName maps a key to a file name. Keys that are not safe path
// components are hashed.
func fileName(key string) string {
	if safeKeyRe.MatchString(key) && key != "." && key != ".." {
		return key + ".json"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:]) + ".json"
}

func (s *FileStore) pathFor(key string) string { return filepath.Join(s.Dir, fileName(key)) }

// Get reads the requested keys. Missing files are skipped.
func (s *FileStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, err := os.ReadFile(s.pathFor(k))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}

// Set writes every value atomically per key.
func (s *FileStore) Set(_ context.Context, values map[string][]byte) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if s.StrictPerms {
		mode = 0o600
	}
	for k, v := range values {
		p := s.pathFor(k)
		tmp := p + ".tmp"
		if err := os.WriteFile(tmp, v, mode); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", k, err)
		}
	}
	return nil
}

// Clear removes the directory and all contents, then recreates it empty.
func (s *FileStore) Clear() error {
	if s == nil || strings.TrimSpace(s.Dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return err
	}
	return s.ensureDir()
}

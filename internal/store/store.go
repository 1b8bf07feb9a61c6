// Package store persists the last good record and the user's target
// percentage behind a minimal key-value contract.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/extract"
)

// Keys used by bunkmate.
const (
	KeyRecord = "extractedAttendanceData"
	KeyTarget = "targetPercentage"
)

// DefaultMaxAge is how long a stored record stays fresh.
const DefaultMaxAge = 60 * time.Minute

var (
	ErrNotFound       = errors.New("no stored value")
	ErrStale          = errors.New("stored record is stale")
	ErrUnusableRecord = errors.New("record was not found or failed validation")
)

// Store is the storage collaborator. Get returns only the keys that exist.
// Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string][]byte) error
}

// SaveRecord persists rec as the last good record. Records that were not
// found or failed validation are refused so they never replace good data.
func SaveRecord(ctx context.Context, s Store, rec extract.Record) error {
	if !rec.Found {
		return ErrUnusableRecord
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.Set(ctx, map[string][]byte{KeyRecord: b})
}

// LoadRecord returns the last stored record. When the record is older than
// maxAge it is still returned, together with ErrStale.
func LoadRecord(ctx context.Context, s Store, now time.Time, maxAge time.Duration) (extract.Record, error) {
	var rec extract.Record
	m, err := s.Get(ctx, KeyRecord)
	if err != nil {
		return rec, err
	}
	b, ok := m[KeyRecord]
	if !ok || len(b) == 0 {
		return rec, ErrNotFound
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return extract.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.Stale(now, maxAge) {
		return rec, ErrStale
	}
	return rec, nil
}

// SaveTarget stores the user's target percentage.
func SaveTarget(ctx context.Context, s Store, target float64) error {
	if target <= 0 || target > 100 {
		return calc.ErrInvalidTarget
	}
	return s.Set(ctx, map[string][]byte{KeyTarget: []byte(strconv.FormatFloat(target, 'f', -1, 64))})
}

// LoadTarget returns the stored target or calc.DefaultTarget when none is
// stored or the stored value is unusable.
func LoadTarget(ctx context.Context, s Store) (float64, error) {
	m, err := s.Get(ctx, KeyTarget)
	if err != nil {
		return calc.DefaultTarget, err
	}
	b, ok := m[KeyTarget]
	if !ok {
		return calc.DefaultTarget, nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil || v <= 0 || v > 100 {
		return calc.DefaultTarget, nil
	}
	return v, nil
}

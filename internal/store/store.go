// Package store persists extraction results. A run writes a gob payload of
// per-unit waveforms next to a small JSON manifest carrying the run
// parameters and a checksum; a later run with matching parameters reads
// the pair back instead of touching the recording again.
package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/lachioma/bombcell/internal/waveform"
)

const (
	payloadFile  = "waveforms.gob"
	manifestFile = "manifest.json"

	manifestVersion = 1
)

var (
	// ErrNoCache means no reusable result exists in the directory.
	ErrNoCache = errors.New("store: no cached result")

	// ErrChecksumMismatch means the payload on disk does not match the
	// checksum its manifest recorded.
	ErrChecksumMismatch = errors.New("store: cached payload does not match its manifest")
)

// Params are the extraction settings a cache is only valid for.
type Params struct {
	Channels        int `json:"channels"`
	Width           int `json:"window_width"`
	SnippetsPerUnit int `json:"snippets_per_unit"`
}

// Manifest describes one persisted result set.
type Manifest struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Params    Params    `json:"params"`
	Units     int       `json:"units"`
	Checksum  string    `json:"checksum_xxh64"`
}

// Cache reads and writes result sets under one directory.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache { return &Cache{dir: dir} }

// Dir is the directory the cache lives in.
func (c *Cache) Dir() string { return c.dir }

type payload struct {
	Units []waveform.UnitResult
}

// Save overwrites the cached result set with units.
func (c *Cache) Save(units []waveform.UnitResult, p Params) (Manifest, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("create results dir: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload{Units: units}); err != nil {
		return Manifest{}, fmt.Errorf("encode waveforms: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, payloadFile), buf.Bytes(), 0o644); err != nil {
		return Manifest{}, fmt.Errorf("write waveforms: %w", err)
	}

	man := Manifest{
		Version:   manifestVersion,
		RunID:     uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Params:    p,
		Units:     len(units),
		Checksum:  fmt.Sprintf("%016x", xxhash.Checksum64(buf.Bytes())),
	}
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, manifestFile), raw, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return man, nil
}

// Load returns the cached result set, verifying the manifest checksum and
// that it was produced with the same parameters. A missing cache or a
// parameter change reports ErrNoCache; a corrupt payload reports
// ErrChecksumMismatch.
func (c *Cache) Load(p Params) ([]waveform.UnitResult, Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(c.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Manifest{}, ErrNoCache
	}
	if err != nil {
		return nil, Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var man Manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if man.Version != manifestVersion {
		return nil, man, fmt.Errorf("manifest version %d: %w", man.Version, ErrNoCache)
	}
	if man.Params != p {
		return nil, man, fmt.Errorf("parameters changed since cache was written: %w", ErrNoCache)
	}

	blob, err := os.ReadFile(filepath.Join(c.dir, payloadFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, man, ErrNoCache
	}
	if err != nil {
		return nil, man, fmt.Errorf("read waveforms: %w", err)
	}
	if sum := fmt.Sprintf("%016x", xxhash.Checksum64(blob)); sum != man.Checksum {
		return nil, man, fmt.Errorf("have %s want %s: %w", sum, man.Checksum, ErrChecksumMismatch)
	}

	var pl payload
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&pl); err != nil {
		return nil, man, fmt.Errorf("decode waveforms: %w", err)
	}
	return pl.Units, man, nil
}

// Clear removes any cached result set.
func (c *Cache) Clear() error {
	for _, name := range []string{payloadFile, manifestFile} {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

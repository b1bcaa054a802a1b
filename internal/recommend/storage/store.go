// Package storage persists CF model artifacts.
//
// Artifacts are gob-encoded, gzip-compressed and carry a SHA-256 checksum
// verified on load. Each build writes a new version; files are named
// {name}_v{version}.gob.gz. Writes go through a temp file and rename so a
// reader never observes a partially written artifact and the previous
// version stays servable until the swap completes.
package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no artifact exists for the requested name.
var ErrNotFound = errors.New("storage: artifact not found")

// Metadata describes a stored artifact.
type Metadata struct {
	Name     string
	Version  int
	SavedAt  time.Time
	Checksum string

	// SizeBytes is the compressed payload size.
	SizeBytes int64
}

// storedFile is the on-disk format: metadata plus compressed payload in
// one gob stream.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store manages versioned artifacts in one directory. Safe for
// concurrent use.
type Store struct {
	dir string

	mu       sync.RWMutex
	versions map[string]int
}

// NewStore opens (creating if needed) an artifact directory and indexes
// the versions already present.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	s := &Store{dir: dir, versions: make(map[string]int)}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("storage: scanning %s: %w", dir, err)
	}
	return s, nil
}

func (s *Store) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseArtifactFilename(entry.Name())
		if !ok {
			continue
		}
		if version > s.versions[name] {
			s.versions[name] = version
		}
	}
	return nil
}

// parseArtifactFilename splits "cf_neighbors_v3.gob.gz" into
// ("cf_neighbors", 3).
func parseArtifactFilename(filename string) (name string, version int, ok bool) {
	base, found := strings.CutSuffix(filename, ".gob.gz")
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx < 1 {
		return "", 0, false
	}
	v, err := strconv.Atoi(base[idx+2:])
	if err != nil || v < 1 {
		return "", 0, false
	}
	return base[:idx], v, true
}

func (s *Store) path(name string, version int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_v%d.gob.gz", name, version))
}

// Save encodes and writes value as the next version of name, returning
// the written metadata. The write is atomic: encode to a temp file in the
// same directory, fsync, rename.
func (s *Store) Save(name string, value any) (*Metadata, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(value); err != nil {
		return nil, fmt.Errorf("storage: encoding %s: %w", name, err)
	}

	hash := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("storage: compressing %s: %w", name, err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("storage: compressing %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.versions[name] + 1
	meta := Metadata{
		Name:      name,
		Version:   version,
		SavedAt:   time.Now().UTC(),
		Checksum:  hex.EncodeToString(hash[:]),
		SizeBytes: int64(compressed.Len()),
	}

	tmp, err := os.CreateTemp(s.dir, name+"_*.tmp")
	if err != nil {
		return nil, fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	sf := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("storage: syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("storage: closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name, version)); err != nil {
		return nil, fmt.Errorf("storage: publishing %s v%d: %w", name, version, err)
	}

	s.versions[name] = version
	return &meta, nil
}

// Load decodes the given version of name into target. Version 0 loads
// the latest. The payload checksum is verified before decoding.
func (s *Store) Load(name string, version int, target any) (*Metadata, error) {
	s.mu.RLock()
	if version == 0 {
		version = s.versions[name]
	}
	s.mu.RUnlock()
	if version == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	f, err := os.Open(s.path(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
		}
		return nil, fmt.Errorf("storage: opening %s v%d: %w", name, version, err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("storage: reading %s v%d: %w", name, version, err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("storage: decompressing %s v%d: %w", name, version, err)
	}
	raw, err := io.ReadAll(gzr)
	if cerr := gzr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("storage: decompressing %s v%d: %w", name, version, err)
	}

	hash := sha256.Sum256(raw)
	if got := hex.EncodeToString(hash[:]); got != sf.Metadata.Checksum {
		return nil, fmt.Errorf("storage: checksum mismatch for %s v%d", name, version)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("storage: decoding %s v%d: %w", name, version, err)
	}
	return &sf.Metadata, nil
}

// LatestVersion returns the newest known version of name, or false if
// none exists.
func (s *Store) LatestVersion(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[name]
	return v, ok && v > 0
}

// Prune deletes all but the newest keep versions of name. Best effort:
// a version that cannot be removed is skipped.
func (s *Store) Prune(name string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("storage: reading %s: %w", s.dir, err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		n, v, ok := parseArtifactFilename(entry.Name())
		if !ok || n != name {
			continue
		}
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for _, v := range versions[min(keep, len(versions)):] {
		_ = os.Remove(s.path(name, v))
	}
	return nil
}

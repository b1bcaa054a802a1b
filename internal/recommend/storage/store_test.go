package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testPayload struct {
	Items     []int
	Neighbors map[int][]float64
}

func samplePayload() testPayload {
	return testPayload{
		Items: []int{1, 2, 3},
		Neighbors: map[int][]float64{
			1: {0.9, 0.5},
			2: {0.7},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	meta, err := s.Save("cf_neighbors", samplePayload())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.Version != 1 {
		t.Errorf("Version = %d, want 1", meta.Version)
	}
	if meta.Checksum == "" || meta.SizeBytes == 0 {
		t.Errorf("incomplete metadata: %+v", meta)
	}

	var got testPayload
	loaded, err := s.Load("cf_neighbors", 0, &got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("loaded version = %d, want 1", loaded.Version)
	}
	if len(got.Items) != 3 || got.Items[2] != 3 {
		t.Errorf("Items = %v", got.Items)
	}
	if len(got.Neighbors[1]) != 2 {
		t.Errorf("Neighbors[1] = %v", got.Neighbors[1])
	}
}

func TestVersionsIncrement(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for want := 1; want <= 3; want++ {
		meta, err := s.Save("cf_neighbors", samplePayload())
		if err != nil {
			t.Fatalf("Save #%d: %v", want, err)
		}
		if meta.Version != want {
			t.Errorf("Version = %d, want %d", meta.Version, want)
		}
	}

	if v, ok := s.LatestVersion("cf_neighbors"); !ok || v != 3 {
		t.Errorf("LatestVersion = %d, %v; want 3, true", v, ok)
	}
}

func TestScanExistingVersions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Save("cf_neighbors", samplePayload()); err != nil {
			t.Fatal(err)
		}
	}

	// A fresh store over the same directory picks up where we left off.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.LatestVersion("cf_neighbors"); !ok || v != 2 {
		t.Errorf("LatestVersion after reopen = %d, %v; want 2, true", v, ok)
	}
	meta, err := reopened.Save("cf_neighbors", samplePayload())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Version != 3 {
		t.Errorf("Version after reopen = %d, want 3", meta.Version)
	}
}

func TestLoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var got testPayload
	if _, err := s.Load("absent", 0, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("cf_neighbors", samplePayload()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "cf_neighbors_v1.gob.gz")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	var got testPayload
	if _, err := s.Load("cf_neighbors", 0, &got); err == nil {
		t.Error("Load of corrupted artifact: want error, got nil")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Save("cf_neighbors", samplePayload()); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Prune("cf_neighbors", 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 {
		t.Fatalf("remaining files = %v, want 2", names)
	}
	var got testPayload
	if _, err := s.Load("cf_neighbors", 4, &got); err != nil {
		t.Errorf("latest version pruned: %v", err)
	}
	if _, err := s.Load("cf_neighbors", 1, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest version kept: err = %v", err)
	}
}

func TestParseArtifactFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantName    string
		wantVersion int
		wantOK      bool
	}{
		{"cf_neighbors_v1.gob.gz", "cf_neighbors", 1, true},
		{"cf_neighbors_v12.gob.gz", "cf_neighbors", 12, true},
		{"cf_neighbors_v0.gob.gz", "", 0, false},
		{"cf_neighbors.gob.gz", "", 0, false},
		{"cf_neighbors_v1.tmp", "", 0, false},
		{"_v1.gob.gz", "", 0, false},
	}
	for _, tt := range tests {
		name, version, ok := parseArtifactFilename(tt.in)
		if name != tt.wantName || version != tt.wantVersion || ok != tt.wantOK {
			t.Errorf("parseArtifactFilename(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.in, name, version, ok, tt.wantName, tt.wantVersion, tt.wantOK)
		}
	}
}

// Package artifact provides content-addressed storage of step outputs with
// retention and integrity checks. Artifacts are identified by
// (step, artifact name) and live under a step-scoped namespace on disk.
package artifact

import (
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"pipeline/internal/apperrors"
)

// Metadata describes one stored artifact.
type Metadata struct {
	Step      string            `json:"step"`
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
	CreatedAt time.Time         `json:"createdAt"`
	Hash      string            `json:"hash"` // hex BLAKE3 of content
	IsDir     bool              `json:"isDir"`
	Tags      map[string]string `json:"tags,omitempty"`
}

const manifestFile = "manifest.json"

// Store persists artifacts under a root directory. All mutating operations
// serialize on an internal mutex since parallel steps complete and store
// artifacts at nearly the same time.
type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	index map[string]*Metadata // key: step + "/" + name
}

// NewStore opens (or creates) a store rooted at dir and loads the metadata
// of any artifacts already on disk.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Internal("artifact.open", err)
	}
	s := &Store{
		root:   dir,
		logger: slog.With("component", "artifact-store"),
		index:  make(map[string]*Metadata),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload scans the on-disk layout and rebuilds the index from manifests.
func (s *Store) reload() error {
	stepDirs, err := os.ReadDir(s.root)
	if err != nil {
		return apperrors.Internal("artifact.reload", err)
	}
	for _, stepDir := range stepDirs {
		if !stepDir.IsDir() {
			continue
		}
		artifactDirs, err := os.ReadDir(filepath.Join(s.root, stepDir.Name()))
		if err != nil {
			return apperrors.Internal("artifact.reload", err)
		}
		for _, artifactDir := range artifactDirs {
			manifestPath := filepath.Join(s.root, stepDir.Name(), artifactDir.Name(), manifestFile)
			data, err := os.ReadFile(manifestPath)
			if err != nil {
				s.logger.Warn("Skipping artifact without manifest", "path", manifestPath, "error", err)
				continue
			}
			var meta Metadata
			if err := json.Unmarshal(data, &meta); err != nil {
				s.logger.Warn("Skipping artifact with corrupt manifest", "path", manifestPath, "error", err)
				continue
			}
			s.index[key(meta.Step, meta.Name)] = &meta
		}
	}
	return nil
}

func key(step, name string) string {
	return step + "/" + name
}

// dir returns the namespace directory for one artifact. Names may contain
// path separators ("dist/app"), so they are escaped for the filesystem.
func (s *Store) dir(step, name string) string {
	return filepath.Join(s.root, url.PathEscape(step), url.PathEscape(name))
}

func (s *Store) dataPath(step, name string) string {
	return filepath.Join(s.dir(step, name), "data")
}

// Store copies a file or directory into the step's namespace and records its
// content hash. Re-storing the same (step, name) overwrites: last write wins.
func (s *Store) Store(step, sourcePath, name string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, apperrors.SourceNotFound(step, sourcePath)
	}

	dir := s.dir(step, name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, apperrors.Internal("artifact.store", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Internal("artifact.store", err)
	}

	dest := s.dataPath(step, name)
	size, err := copyPath(sourcePath, dest)
	if err != nil {
		return nil, apperrors.Internal("artifact.store", err)
	}

	hash, err := HashPath(dest)
	if err != nil {
		return nil, apperrors.Internal("artifact.store", err)
	}

	meta := &Metadata{
		Step:      step,
		Name:      name,
		Size:      size,
		CreatedAt: time.Now().UTC(),
		Hash:      hash,
		IsDir:     info.IsDir(),
	}
	if err := s.writeManifest(meta); err != nil {
		return nil, err
	}

	s.index[key(step, name)] = meta
	s.logger.Info("Artifact stored", "step", step, "artifact", name, "size", size)
	return meta, nil
}

func (s *Store) writeManifest(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.Internal("artifact.manifest", err)
	}
	path := filepath.Join(s.dir(meta.Step, meta.Name), manifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Internal("artifact.manifest", err)
	}
	return nil
}

// Retrieve copies an artifact's content to destPath.
func (s *Store) Retrieve(step, name, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key(step, name)]; !ok {
		return apperrors.NotFound("artifact", key(step, name))
	}
	if _, err := copyPath(s.dataPath(step, name), destPath); err != nil {
		return apperrors.Internal("artifact.retrieve", err)
	}
	return nil
}

// Get returns the metadata for one artifact.
func (s *Store) Get(step, name string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.index[key(step, name)]
	if !ok {
		return nil, apperrors.NotFound("artifact", key(step, name))
	}
	clone := *meta
	return &clone, nil
}

// List returns all artifacts, optionally filtered to one step (empty step
// means all). Results are sorted by step then name.
func (s *Store) List(step string) []Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Metadata
	for _, meta := range s.index {
		if step != "" && meta.Step != step {
			continue
		}
		out = append(out, *meta)
	}
	sortMetadata(out)
	return out
}

// Delete removes an artifact. Idempotent: deleting a missing artifact
// returns false, not an error.
func (s *Store) Delete(step, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(step, name)
}

func (s *Store) deleteLocked(step, name string) (bool, error) {
	if _, ok := s.index[key(step, name)]; !ok {
		return false, nil
	}
	if err := os.RemoveAll(s.dir(step, name)); err != nil {
		return false, apperrors.Internal("artifact.delete", err)
	}
	delete(s.index, key(step, name))
	return true, nil
}

// VerifyIntegrity recomputes the content hash and compares it to the stored
// value.
func (s *Store) VerifyIntegrity(step, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.index[key(step, name)]
	if !ok {
		return false, apperrors.NotFound("artifact", key(step, name))
	}
	hash, err := HashPath(s.dataPath(step, name))
	if err != nil {
		return false, apperrors.Internal("artifact.verify", err)
	}
	return hash == meta.Hash, nil
}

// CleanOlderThan deletes artifacts whose age exceeds the retention window.
// Returns the number of artifacts removed.
func (s *Store) CleanOlderThan(retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, meta := range s.snapshotLocked() {
		if !meta.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := s.deleteLocked(meta.Step, meta.Name)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Retention sweep removed artifacts", "count", removed, "retentionDays", retentionDays)
	}
	return removed, nil
}

func (s *Store) snapshotLocked() []Metadata {
	out := make([]Metadata, 0, len(s.index))
	for _, meta := range s.index {
		out = append(out, *meta)
	}
	sortMetadata(out)
	return out
}

func sortMetadata(metas []Metadata) {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Step != metas[j].Step {
			return metas[i].Step < metas[j].Step
		}
		return metas[i].Name < metas[j].Name
	})
}

// copyPath copies a file or directory tree and returns the total bytes
// copied.
func copyPath(src, dest string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return copyDir(src, dest)
	}
	return copyFile(src, dest, info.Mode())
}

func copyFile(src, dest string, mode fs.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

func copyDir(src, dest string) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		n, err := copyFile(path, target, info.Mode())
		total += n
		return err
	})
	return total, err
}

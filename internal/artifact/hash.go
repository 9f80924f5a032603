package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// HashPath computes the BLAKE3 content hash of a file or directory tree,
// hex-encoded. Directory hashes cover relative paths and file contents, so
// renames and edits both change the hash. Metadata (modes, timestamps) is
// excluded: integrity verification cares about content, not about how the
// copy was made.
func HashPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return hashDir(path)
	}
	return hashFile(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashDir hashes a manifest of (relative path, file hash) pairs in sorted
// path order, which makes the result independent of walk order.
func hashDir(root string) (string, error) {
	type entry struct {
		rel  string
		hash string
	}
	var entries []entry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fileHash, err := hashFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), hash: fileHash})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := blake3.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\x00", e.rel, e.hash)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"pipeline/internal/apperrors"
)

// Archive bundles every current artifact into a single tar.gz at outputPath.
// Entries are laid out as <step>/<artifact name>[/...]. Archiving an empty
// store produces a valid empty archive.
func (s *Store) Archive(outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := os.Create(outputPath)
	if err != nil {
		return apperrors.Internal("artifact.archive", err)
	}
	defer out.Close()

	gzWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzWriter)

	for _, meta := range s.snapshotLocked() {
		prefix := path.Join(meta.Step, meta.Name)
		dataPath := s.dataPath(meta.Step, meta.Name)
		if err := addToArchive(tarWriter, dataPath, prefix, meta.IsDir); err != nil {
			return apperrors.Internal("artifact.archive", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return apperrors.Internal("artifact.archive", err)
	}
	if err := gzWriter.Close(); err != nil {
		return apperrors.Internal("artifact.archive", err)
	}
	return out.Close()
}

func addToArchive(tw *tar.Writer, dataPath, prefix string, isDir bool) error {
	if !isDir {
		info, err := os.Stat(dataPath)
		if err != nil {
			return err
		}
		return writeArchiveFile(tw, dataPath, prefix, info)
	}

	return filepath.WalkDir(dataPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataPath, p)
		if err != nil {
			return err
		}
		name := prefix
		if rel != "." {
			name = path.Join(prefix, filepath.ToSlash(rel))
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return fmt.Errorf("failed to create tar header: %w", err)
			}
			header.Name = name + "/"
			return tw.WriteHeader(header)
		}
		return writeArchiveFile(tw, p, name, info)
	})
}

func writeArchiveFile(tw *tar.Writer, filePath, name string, info fs.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header: %w", err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write file to tar: %w", err)
	}
	return nil
}

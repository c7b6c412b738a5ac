package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore is a Store backed by a local directory. Used by the one-shot
// run command and by tests; keys map directly to file paths.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

func (s *FSStore) DownloadBlobs(ctx context.Context, prefix, destDir string) error {
	srcDir := filepath.Join(s.root, filepath.FromSlash(prefix))

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", srcDir, err)
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		return copyFile(path, destPath)
	})
}

func (s *FSStore) UploadBlob(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid key: %s", key)
	}

	destPath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

var _ Store = (*FSStore)(nil)

// Package repository stores external plugin bundles on disk under
// {root}/{author}/{package}/{version}.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/values"
)

const (
	// BundleFileName is the bundle script inside an install directory.
	BundleFileName = "package.js"
	// ManifestFileName is the optional metadata file next to the bundle.
	ManifestFileName = "metadata.json"

	// pruneLevels is how many empty parents Remove deletes: version,
	// package and author directories.
	pruneLevels = 3
)

// FSBundleStore is the on-disk layout of installed bundles.
type FSBundleStore struct {
	root string
}

// NewFSBundleStore creates a store rooted at root. The directory is
// created lazily on first write.
func NewFSBundleStore(root string) *FSBundleStore {
	return &FSBundleStore{root: filepath.Clean(root)}
}

// Root returns the save directory.
func (s *FSBundleStore) Root() string { return s.root }

// Dir returns the install directory of id.
func (s *FSBundleStore) Dir(id values.PluginPackageID) string {
	return filepath.Join(s.root, id.Author(), id.Package(), id.Version())
}

// Write stores the bundle (and manifest, when non-nil) for id and returns
// the install directory. A nil manifest removes any manifest left from an
// earlier write, so the directory always mirrors the last call. On failure
// nothing is left behind.
func (s *FSBundleStore) Write(ctx context.Context, id values.PluginPackageID, bundle, manifest []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", apperrors.NewIOFailureError("mkdir", dir, err)
	}

	files := map[string][]byte{BundleFileName: bundle}
	if manifest != nil {
		files[ManifestFileName] = manifest
	} else {
		stale := filepath.Join(dir, ManifestFileName)
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = s.Remove(ctx, id)
			return "", apperrors.NewIOFailureError("remove", stale, err)
		}
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o640); err != nil {
			_ = s.Remove(ctx, id)
			return "", apperrors.NewIOFailureError("write", path, err)
		}
	}

	return dir, nil
}

// Remove deletes the install directory of id and prunes up to three empty
// parent directories, stopping at the root. Removing an absent directory
// is not an error.
func (s *FSBundleStore) Remove(_ context.Context, id values.PluginPackageID) error {
	dir := s.Dir(id)
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.NewIOFailureError("remove", dir, err)
	}

	parent := filepath.Dir(dir)
	for i := 1; i < pruneLevels && parent != s.root; i++ {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(parent); err != nil {
			slog.Debug("failed to prune plugin directory", "dir", parent, "error", err)
			break
		}
		parent = filepath.Dir(parent)
	}
	return nil
}

// Exists reports whether a bundle file is present for id.
func (s *FSBundleStore) Exists(id values.PluginPackageID) bool {
	info, err := os.Stat(filepath.Join(s.Dir(id), BundleFileName))
	return err == nil && !info.IsDir()
}

// ReadBundle returns the bundle text of id.
func (s *FSBundleStore) ReadBundle(id values.PluginPackageID) (string, error) {
	path := filepath.Join(s.Dir(id), BundleFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.NewIOFailureError("read", path, err)
	}
	return string(data), nil
}

// ReadManifest returns the raw manifest of id, or nil when none exists.
func (s *FSBundleStore) ReadManifest(id values.PluginPackageID) ([]byte, error) {
	path := filepath.Join(s.Dir(id), ManifestFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOFailureError("read", path, err)
	}
	return data, nil
}

// Scan walks author/package/version directories and returns the ids whose
// directory holds a bundle, sorted. A missing root yields no ids.
func (s *FSBundleStore) Scan(ctx context.Context) ([]values.PluginPackageID, error) {
	authors, err := readDirs(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOFailureError("scan", s.root, err)
	}

	var ids []values.PluginPackageID
	for _, author := range authors {
		packages, err := readDirs(filepath.Join(s.root, author))
		if err != nil {
			return nil, apperrors.NewIOFailureError("scan", filepath.Join(s.root, author), err)
		}
		for _, pkg := range packages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			versions, err := readDirs(filepath.Join(s.root, author, pkg))
			if err != nil {
				return nil, apperrors.NewIOFailureError("scan", filepath.Join(s.root, author, pkg), err)
			}
			for _, version := range versions {
				id, err := values.NewPluginPackageID(author, pkg, version)
				if err != nil {
					slog.Debug("skipping plugin directory with invalid name",
						"dir", filepath.Join(author, pkg, version), "error", err)
					continue
				}
				if s.Exists(id) {
					ids = append(ids, id)
				}
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// String implements fmt.Stringer.
func (s *FSBundleStore) String() string {
	return fmt.Sprintf("FSBundleStore(%s)", s.root)
}

package providers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// FilesystemPackageID is the id of the filesystem package.
const FilesystemPackageID = "app.flowgate.core.filesystem"

var (
	fsReadID  = functionID(FilesystemPackageID, "read")
	fsWriteID = functionID(FilesystemPackageID, "write")
	fsListID  = functionID(FilesystemPackageID, "list")
	fsGlobID  = functionID(FilesystemPackageID, "glob")
)

// FilesystemPackage exposes fs.read, fs.write, fs.list and fs.glob.
func FilesystemPackage() capability.Package {
	read := permissions.NewSet(permissions.New(permissions.KindFilesystemRead))
	write := permissions.NewSet(permissions.New(permissions.KindFilesystemWrite))

	return capability.Package{
		ID:          FilesystemPackageID,
		DisplayName: "Filesystem",
		Description: "Read, write and list local files.",
		Namespace:   "fs",
		Provenance:  capability.Internal{},
		Functions: []capability.Function{
			{
				ID:          fsReadID,
				Name:        "read",
				DisplayName: "Read file",
				Description: "Returns the contents of a file.",
				Required:    read,
				ArgumentDoc: "path: string",
				ReturnDoc:   "string",
				Invocation:  capability.Native{Callback: fsRead},
			},
			{
				ID:          fsWriteID,
				Name:        "write",
				DisplayName: "Write file",
				Description: "Writes content to a file, creating parent directories.",
				Required:    write,
				ArgumentDoc: "path: string, content: string",
				ReturnDoc:   "string: path",
				Invocation:  capability.Native{Callback: fsWrite},
			},
			{
				ID:          fsListID,
				Name:        "list",
				DisplayName: "List directory",
				Description: "Returns a JSON array of the entry names in a directory.",
				Required:    read,
				ArgumentDoc: "dir: string",
				ReturnDoc:   "string: JSON array",
				Invocation:  capability.Native{Callback: fsList},
			},
			{
				ID:          fsGlobID,
				Name:        "glob",
				DisplayName: "Glob",
				Description: "Returns a JSON array of paths under root matching a doublestar pattern.",
				Required:    read,
				ArgumentDoc: "root: string, pattern: string",
				ReturnDoc:   "string: JSON array",
				Invocation:  capability.Native{Callback: fsGlob},
			},
		},
	}
}

// absPath resolves p to the absolute, cleaned path used as the permission
// resource token.
func absPath(p string) (string, error) {
	if p == "" {
		return "", apperrors.NewValidationError("path", "path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", apperrors.NewIOFailureError("resolve", p, err)
	}
	return abs, nil
}

func authorizePath(rc capability.RunContext, functionID string, kind permissions.Kind, path string) error {
	return rc.Authorize(functionID, permissions.NewSet(permissions.New(kind, path)))
}

func fsRead(_ context.Context, rc capability.RunContext, args []string) (string, error) {
	path, err := absPath(arg(args, 0))
	if err != nil {
		return "", err
	}
	if err := authorizePath(rc, fsReadID, permissions.KindFilesystemRead, path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.NewIOFailureError("read", path, err)
	}
	return string(data), nil
}

func fsWrite(_ context.Context, rc capability.RunContext, args []string) (string, error) {
	path, err := absPath(arg(args, 0))
	if err != nil {
		return "", err
	}
	if err := authorizePath(rc, fsWriteID, permissions.KindFilesystemWrite, path); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", apperrors.NewIOFailureError("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(arg(args, 1)), 0o640); err != nil {
		return "", apperrors.NewIOFailureError("write", path, err)
	}
	return path, nil
}

func fsList(_ context.Context, rc capability.RunContext, args []string) (string, error) {
	dir, err := absPath(arg(args, 0))
	if err != nil {
		return "", err
	}
	if err := authorizePath(rc, fsListID, permissions.KindFilesystemRead, dir); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperrors.NewIOFailureError("list", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return jsonArray(names)
}

func fsGlob(_ context.Context, rc capability.RunContext, args []string) (string, error) {
	root, err := absPath(arg(args, 0))
	if err != nil {
		return "", err
	}
	pattern := arg(args, 1)
	if !doublestar.ValidatePattern(pattern) {
		return "", apperrors.NewValidationError("pattern", "invalid glob pattern", pattern)
	}
	if err := authorizePath(rc, fsGlobID, permissions.KindFilesystemRead, root); err != nil {
		return "", err
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return "", apperrors.NewIOFailureError("glob", root, err)
	}
	for i, m := range matches {
		matches[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	sort.Strings(matches)
	return jsonArray(matches)
}

func jsonArray(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

package providers

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// SearchPackageID is the id of the file search package.
const SearchPackageID = "app.flowgate.core.search"

// maxSearchResults caps the number of paths returned by one search.
const maxSearchResults = 1000

var searchFileID = functionID(SearchPackageID, "file")

var errSearchLimit = errors.New("search result limit reached")

// SearchPackage exposes search.file(root, query).
func SearchPackage() capability.Package {
	return capability.Package{
		ID:          SearchPackageID,
		DisplayName: "Search",
		Description: "Search for files by name.",
		Namespace:   "search",
		Provenance:  capability.Internal{},
		Functions: []capability.Function{{
			ID:          searchFileID,
			Name:        "file",
			DisplayName: "Search files",
			Description: "Returns a JSON array of paths under root whose name contains query.",
			Required:    permissions.NewSet(permissions.New(permissions.KindSearch)),
			ArgumentDoc: "root: string, query: string",
			ReturnDoc:   "string: JSON array",
			Invocation:  capability.Native{Callback: searchFile},
		}},
	}
}

func searchFile(ctx context.Context, rc capability.RunContext, args []string) (string, error) {
	root := arg(args, 0)
	if root == "" {
		root = string(filepath.Separator)
	}
	root, err := absPath(root)
	if err != nil {
		return "", err
	}
	query := arg(args, 1)

	required := permissions.NewSet(permissions.New(permissions.KindSearch, root))
	if err := rc.Authorize(searchFileID, required); err != nil {
		return "", err
	}

	var results []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if strings.Contains(d.Name(), query) {
			results = append(results, path)
			if len(results) >= maxSearchResults {
				return errSearchLimit
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errSearchLimit) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", apperrors.NewIOFailureError("search", root, walkErr)
	}
	return jsonArray(results)
}

package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/version"
)

// FetchPackageID is the id of the HTTP fetch package.
const FetchPackageID = "app.flowgate.core.fetch"

var fetchFunctionID = functionID(FetchPackageID, "fetch")

// FetchPackage exposes fetch(url) as a global returning the body text.
func FetchPackage(opts Options) capability.Package {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return capability.Package{
		ID:          FetchPackageID,
		DisplayName: "Fetch",
		Description: "Fetch the content of a URL.",
		Provenance:  capability.Internal{},
		Functions: []capability.Function{{
			ID:          fetchFunctionID,
			Name:        "fetch",
			DisplayName: "Fetch",
			Description: "Fetches a URL with GET and returns the response body as text.",
			Required:    permissions.NewSet(permissions.New(permissions.KindNetAccess)),
			ArgumentDoc: "url: string",
			ReturnDoc:   "string: response body",
			Invocation: capability.Native{
				Async:    true,
				Callback: fetchCallback(client, int64(opts.maxOutput())),
			},
		}},
	}
}

func fetchCallback(client *http.Client, maxBody int64) capability.NativeFunc {
	return func(ctx context.Context, rc capability.RunContext, args []string) (string, error) {
		raw := arg(args, 0)
		target, err := url.Parse(raw)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return "", apperrors.NewValidationError("url", "an absolute http(s) URL is required", raw)
		}

		// The host (with port, if any) is the resource token
		required := permissions.NewSet(permissions.New(permissions.KindNetAccess, target.Host))
		if err := rc.Authorize(fetchFunctionID, required); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", target.Redacted(), err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("failed to fetch %s: %s", target.Redacted(), resp.Status)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return "", fmt.Errorf("failed to read body of %s: %w", target.Redacted(), err)
		}
		return string(body), nil
	}
}

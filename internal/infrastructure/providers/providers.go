// Package providers implements the internal capability packages compiled
// into the host: process execution, filesystem, HTTP fetch and file
// search.
package providers

import (
	"net/http"
	"time"

	"github.com/reglet-dev/flowgate/internal/domain/capability"
)

// Options configure the internal providers.
type Options struct {
	// ExecTimeout bounds a single exec call. Zero means no bound beyond
	// the run's context.
	ExecTimeout time.Duration
	// HTTPClient is used by fetch. Nil uses a client with a 30s timeout.
	HTTPClient *http.Client
	// MaxOutputBytes caps captured process output and fetched bodies.
	MaxOutputBytes int
}

const defaultMaxOutputBytes = 10 * 1024 * 1024

func (o Options) maxOutput() int {
	if o.MaxOutputBytes > 0 {
		return o.MaxOutputBytes
	}
	return defaultMaxOutputBytes
}

// Internal returns every internal package.
func Internal(opts Options) []capability.Package {
	return []capability.Package{
		ExecPackage(opts),
		FilesystemPackage(),
		FetchPackage(opts),
		SearchPackage(),
	}
}

// functionID joins a package id and a function name.
func functionID(packageID, name string) string {
	return packageID + "." + name
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

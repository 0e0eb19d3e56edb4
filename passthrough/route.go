package passthrough

import (
	"context"
	"errors"
	"fmt"

	"github.com/icecave/sniroute/resolver"
)

// Mode selects the resolution path used by the passthrough listener.
type Mode string

const (
	// ModeBackend routes with the best-effort path.
	ModeBackend Mode = "backend"

	// ModeUpstream routes with the default-aware path.
	ModeUpstream Mode = "upstream"
)

// ParseMode parses a routing mode name. An empty string yields ModeBackend.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBackend:
		return ModeBackend, nil
	case ModeUpstream:
		return ModeUpstream, nil
	default:
		return "", fmt.Errorf("unknown routing mode '%s'", s)
	}
}

// ErrInvalidBackend is returned by the upstream route when the hostname has
// no usable endpoint list.
var ErrInvalidBackend = errors.New("invalid backend")

// RouteFunc chooses the backend address for a hostname. A non-nil error means
// the connection must be closed.
type RouteFunc func(ctx context.Context, hostname string) (string, error)

// Route returns the RouteFunc for the given mode.
func Route(r *resolver.Resolver, mode Mode) RouteFunc {
	if mode == ModeUpstream {
		return func(ctx context.Context, hostname string) (string, error) {
			endpoint := r.Upstream(ctx, hostname)
			if endpoint == resolver.InvalidBackend {
				return "", ErrInvalidBackend
			}
			return endpoint, nil
		}
	}

	return func(ctx context.Context, hostname string) (string, error) {
		return r.Backend(ctx, hostname), nil
	}
}

// ProxiedRoute returns the RouteFunc used by the relay, which denies any
// connection that the strict path can not resolve.
func ProxiedRoute(r *resolver.Resolver) RouteFunc {
	return r.ProxiedBackend
}

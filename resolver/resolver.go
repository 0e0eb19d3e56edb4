package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/metrics"
	"github.com/icecave/sniroute/registry"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFallbackAddress is the catch-all address used by the best-effort
	// and default-aware paths.
	DefaultFallbackAddress = "127.0.0.1:442"

	// DefaultRelayAddress is the local proxy-protocol relay that receives
	// connections for hosts configured with use_proxy.
	DefaultRelayAddress = "unix:/var/run/nginx/streamproxy.sock"

	// InvalidBackend is returned by the default-aware path when the hostname
	// has no usable endpoint list.
	InvalidBackend = "@invalidbackend"

	// unsetHostname is the placeholder some proxy engines report for a
	// missing server name.
	unsetHostname = "undefined"
)

// ErrDenied is returned by ProxiedBackend when the connection must be
// rejected.
var ErrDenied = errors.New("connection denied")

// Route is the result of a successful bulk configuration lookup.
type Route struct {
	Endpoint string
	UseProxy bool
}

// Resolver maps SNI hostnames to backend addresses.
//
// Every method is total: it yields an address, a sentinel, or an explicit
// denial, and never blocks on anything other than the registry read.
type Resolver struct {
	Registry registry.Registry
	Selector *Selector
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics

	// FallbackAddress overrides DefaultFallbackAddress.
	FallbackAddress string

	// RelayAddress overrides DefaultRelayAddress.
	RelayAddress string

	cache backend.Cache
}

// ResolveEndpoint looks up the bulk configuration descriptor for hostname.
//
// The returned error is always a *backend.LookupError.
func (r *Resolver) ResolveEndpoint(ctx context.Context, hostname string) (Route, error) {
	if hostname == "" || hostname == unsetHostname {
		return Route{}, &backend.LookupError{
			Kind:   backend.NoHostname,
			Reason: "hostname was not provided",
		}
	}

	raw, ok, err := r.Registry.Get(ctx, registry.BulkKey)
	if err != nil {
		return Route{}, &backend.LookupError{
			Kind:   backend.NoConfiguration,
			Reason: fmt.Sprintf("could not read endpoint map: %s", err),
		}
	} else if !ok || raw == "" {
		return Route{}, &backend.LookupError{
			Kind:   backend.NoConfiguration,
			Reason: "no entry on endpoint map",
		}
	}

	table, err := r.cache.Table(raw)
	if err != nil {
		return Route{}, &backend.LookupError{
			Kind:   backend.NoConfiguration,
			Reason: fmt.Sprintf("endpoint map is corrupt: %s", err),
		}
	}

	d, err := table.Lookup(hostname)
	if err != nil {
		return Route{}, err
	}

	return Route{d.Endpoint, d.UseProxy}, nil
}

// Backend is the best-effort path. It returns the endpoint for hostname, the
// relay address if the host requires the PROXY protocol, or the fallback
// address if the hostname can not be resolved.
func (r *Resolver) Backend(ctx context.Context, hostname string) string {
	route, err := r.ResolveEndpoint(ctx, hostname)
	if err != nil {
		r.Logger.WithError(err).WithField("host", hostname).Warn("error occurred while getting the backend, sending to default backend")
		r.Metrics.Resolution("backend", "fallback")
		return r.fallbackAddress()
	}

	if route.UseProxy {
		r.Metrics.Resolution("backend", "relay")
		return r.relayAddress()
	}

	r.Metrics.Resolution("backend", "ok")
	return route.Endpoint
}

// ProxiedBackend is the strict path, used for connections that already carry
// PROXY protocol framing. It returns the endpoint for hostname, or an error
// wrapping ErrDenied if the connection must be rejected.
func (r *Resolver) ProxiedBackend(ctx context.Context, hostname string) (string, error) {
	route, err := r.ResolveEndpoint(ctx, hostname)
	if err != nil {
		r.Logger.WithError(err).WithField("host", hostname).Warn("error occurred while getting the backend, denying connection")
		r.Metrics.Resolution("proxied", "denied")
		return "", fmt.Errorf("%w: %s", ErrDenied, err)
	}

	r.Metrics.Resolution("proxied", "ok")
	return route.Endpoint, nil
}

// Upstream is the default-aware path. An empty hostname yields the fallback
// address without consulting the registry; otherwise an endpoint is selected
// from the hostname's endpoint list, or InvalidBackend is returned.
func (r *Resolver) Upstream(ctx context.Context, hostname string) string {
	if hostname == "" {
		r.Metrics.Resolution("upstream", "fallback")
		return r.fallbackAddress()
	}

	endpoint, err := r.Selector.Select(ctx, hostname)
	if err != nil {
		r.Logger.WithError(err).WithField("host", hostname).Warn("error occurred while selecting the upstream")
		r.Metrics.Resolution("upstream", "invalid")
		return InvalidBackend
	}

	r.Metrics.Resolution("upstream", "ok")
	return endpoint
}

func (r *Resolver) fallbackAddress() string {
	if r.FallbackAddress != "" {
		return r.FallbackAddress
	}
	return DefaultFallbackAddress
}

func (r *Resolver) relayAddress() string {
	if r.RelayAddress != "" {
		return r.RelayAddress
	}
	return DefaultRelayAddress
}

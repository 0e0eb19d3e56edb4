package resolver

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/registry"
)

// Rand is a source of uniformly distributed random integers.
type Rand interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// Selector picks one endpoint, uniformly at random, from a hostname's
// endpoint list.
type Selector struct {
	Registry registry.Registry

	// Rand is the random source. If it is nil the global math/rand source is
	// used.
	Rand Rand
}

// Select returns an endpoint for hostname. The returned error is always a
// *backend.LookupError of kind backend.InvalidBackend.
func (s *Selector) Select(ctx context.Context, hostname string) (string, error) {
	raw, ok, err := s.Registry.Get(ctx, registry.HostKey(hostname))
	if err != nil {
		return "", &backend.LookupError{
			Kind:     backend.InvalidBackend,
			Hostname: hostname,
			Reason:   fmt.Sprintf("could not read endpoint list: %s", err),
		}
	} else if !ok {
		return "", &backend.LookupError{
			Kind:     backend.InvalidBackend,
			Hostname: hostname,
			Reason:   "no endpoint list is configured",
		}
	}

	list, err := backend.DecodeEndpointList(hostname, raw)
	if err != nil {
		return "", err
	}

	i := s.intn(len(list))
	endpoint, ok := list.At(i)
	if !ok {
		return "", &backend.LookupError{
			Kind:     backend.InvalidBackend,
			Hostname: hostname,
			Reason:   fmt.Sprintf("endpoint %d is not a string", i),
		}
	}

	return endpoint, nil
}

func (s *Selector) intn(n int) int {
	if s.Rand != nil {
		return s.Rand.Intn(n)
	}
	return rand.Intn(n)
}

package registry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Mirror is a Registry that combines two registries. Reads are served by the
// primary registry only; writes are applied to the primary and then copied to
// the secondary.
//
// A failure to write to the secondary is logged but not returned, so an
// unavailable persistence layer never prevents reconfiguration.
type Mirror struct {
	Primary   Registry
	Secondary Registry
	Logger    logrus.FieldLogger
}

// Get returns the value stored under k in the primary registry.
func (m *Mirror) Get(ctx context.Context, k Key) (string, bool, error) {
	return m.Primary.Get(ctx, k)
}

// Set stores value under k in both registries.
func (m *Mirror) Set(ctx context.Context, k Key, value string) error {
	if err := m.Primary.Set(ctx, k, value); err != nil {
		return err
	}

	if err := m.Secondary.Set(ctx, k, value); err != nil {
		m.Logger.WithError(err).WithField("key", k.String()).Warn("could not mirror registry value")
	}

	return nil
}

// Clear removes every value in the given namespace from both registries.
func (m *Mirror) Clear(ctx context.Context, ns Namespace) error {
	if err := m.Primary.Clear(ctx, ns); err != nil {
		return err
	}

	if err := m.Secondary.Clear(ctx, ns); err != nil {
		m.Logger.WithError(err).WithField("namespace", string(ns)).Warn("could not clear mirrored registry namespace")
	}

	return nil
}

// Entries returns every value in the given namespace of the primary registry.
func (m *Mirror) Entries(ctx context.Context, ns Namespace) (map[string]string, error) {
	return m.Primary.Entries(ctx, ns)
}

// Restore copies every value held by the secondary registry into the primary
// registry. It returns the number of values copied.
func (m *Mirror) Restore(ctx context.Context) (int, error) {
	return Copy(ctx, m.Secondary, m.Primary, Bulk, Hosts)
}

// Copy copies the values in the given namespaces from src to dst.
func Copy(ctx context.Context, src, dst Registry, namespaces ...Namespace) (n int, err error) {
	for _, ns := range namespaces {
		entries, e := src.Entries(ctx, ns)
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}

		for name, value := range entries {
			if e := dst.Set(ctx, Key{ns, name}, value); e != nil {
				err = multierr.Append(err, e)
				continue
			}
			n++
		}
	}

	return n, err
}

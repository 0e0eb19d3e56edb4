package registry

import (
	"context"
	"fmt"
)

// Namespace partitions the registry's keys. Each namespace is addressed
// independently; a key in one namespace never shadows a key in another.
type Namespace string

const (
	// Bulk holds the single serialized bulk configuration document.
	Bulk Namespace = "bulk"

	// Hosts holds per-hostname endpoint list descriptors.
	Hosts Namespace = "host"
)

// BulkKeyName is the reserved name under which the bulk configuration is
// stored.
const BulkKeyName = "passthroughmap"

// BulkKey is the key of the bulk configuration document.
var BulkKey = Key{Bulk, BulkKeyName}

// Key addresses a single registry value.
type Key struct {
	Namespace Namespace
	Name      string
}

// HostKey returns the key of the endpoint list for the given hostname.
func HostKey(hostname string) Key {
	return Key{Hosts, hostname}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Namespace, k.Name)
}

// Registry is a key/value store of serialized backend descriptors.
type Registry interface {
	// Get returns the value stored under k. ok is false if there is no such
	// value.
	Get(ctx context.Context, k Key) (value string, ok bool, err error)

	// Set stores value under k, replacing any existing value.
	Set(ctx context.Context, k Key, value string) error

	// Clear removes every value in the given namespace.
	Clear(ctx context.Context, ns Namespace) error

	// Entries returns every value in the given namespace, keyed by name.
	Entries(ctx context.Context, ns Namespace) (map[string]string, error)
}

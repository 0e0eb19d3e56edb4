package static

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/keys"
	"go.uber.org/multierr"
)

var errSeedRejected = errors.New("static routes were rejected")

// Route is a statically configured bulk descriptor.
type Route struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	UseProxy bool   `yaml:"use_proxy" json:"use_proxy"`
}

// Routes holds routing data that is seeded into the registry at startup.
type Routes struct {
	// Hosts are the bulk descriptors, keyed by hostname.
	Hosts map[string]Route `yaml:"hosts"`

	// Endpoints are the per-host endpoint lists, keyed by hostname.
	Endpoints map[string][]string `yaml:"endpoints"`
}

// Empty returns true if there is nothing to seed.
func (r Routes) Empty() bool {
	return len(r.Hosts) == 0 && len(r.Endpoints) == 0
}

// Merge adds the routes from o, replacing any hostnames already present.
func (r *Routes) Merge(o Routes) {
	for h, route := range o.Hosts {
		if r.Hosts == nil {
			r.Hosts = map[string]Route{}
		}
		r.Hosts[h] = route
	}

	for h, list := range o.Endpoints {
		if r.Endpoints == nil {
			r.Endpoints = map[string][]string{}
		}
		r.Endpoints[h] = list
	}
}

// Document returns the bulk configuration document describing r.Hosts.
func (r Routes) Document() ([]byte, error) {
	doc := make(backend.Document, len(r.Hosts))

	for h, route := range r.Hosts {
		entry, err := json.Marshal(route)
		if err != nil {
			return nil, err
		}
		doc[h] = entry
	}

	return doc.Marshal()
}

// Seed writes the routes to the registry. The bulk configuration is published
// as a single document; each endpoint list is set individually.
func (r Routes) Seed(ctx context.Context, in *ingest.Ingestor, up *keys.Updater) error {
	var err error

	if len(r.Hosts) != 0 {
		doc, e := r.Document()
		if e != nil {
			return e
		}

		if status := in.Apply(ctx, doc); status != ingest.StatusOK {
			err = multierr.Append(err, errSeedRejected)
		}
	}

	hostnames := make([]string, 0, len(r.Endpoints))
	for h := range r.Endpoints {
		hostnames = append(hostnames, h)
	}
	sort.Strings(hostnames)

	for _, h := range hostnames {
		body, e := json.Marshal(map[string][]string{"endpoints": r.Endpoints[h]})
		if e == nil {
			e = up.Set(ctx, h, body)
		}
		err = multierr.Append(err, e)
	}

	return err
}

package static

import (
	"fmt"
	"os"

	"github.com/icecave/sniroute/name"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// FromFile loads static routes from a YAML bootstrap file:
//
//	hosts:
//	  www.example.com:
//	    endpoint: 10.0.0.1:443
//	    use_proxy: true
//	endpoints:
//	  api.example.com: [10.0.0.2:443, 10.0.0.3:443]
func FromFile(path string) (Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Routes{}, err
	}

	return parseFile(data)
}

func parseFile(data []byte) (Routes, error) {
	var raw Routes

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Routes{}, fmt.Errorf("could not parse bootstrap file: %w", err)
	}

	var (
		routes Routes
		err    error
	)

	for h, r := range raw.Hosts {
		hostname, e := name.ToSNI(h)
		if e == nil && r.Endpoint == "" {
			e = fmt.Errorf("host '%s' has no endpoint", h)
		}
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		routes.Merge(Routes{Hosts: map[string]Route{hostname: r}})
	}

	for h, list := range raw.Endpoints {
		hostname, e := name.ToSNI(h)
		if e == nil && len(list) == 0 {
			e = fmt.Errorf("host '%s' has an empty endpoint list", h)
		}
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		routes.Merge(Routes{Endpoints: map[string][]string{hostname: list}})
	}

	if err != nil {
		return Routes{}, err
	}

	return routes, nil
}

package static

import (
	"fmt"
	"os"
	"regexp"

	"github.com/icecave/sniroute/name"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// FromEnv returns static routes configured by environment variables of the
// form:
//
//	ROUTE_<TAG>=<hostname> <endpoint> [proxy]
//
// Every malformed variable is reported in the returned error.
func FromEnv(logger logrus.FieldLogger) (Routes, error) {
	routes, err := fromEnv(os.Environ())
	if err != nil {
		return Routes{}, err
	}

	for h, r := range routes.Hosts {
		logger.WithFields(logrus.Fields{
			"host":      h,
			"endpoint":  r.Endpoint,
			"use_proxy": r.UseProxy,
		}).Info("added static route")
	}

	return routes, nil
}

func fromEnv(env []string) (Routes, error) {
	var (
		routes Routes
		err    error
	)

	for _, kv := range env {
		groups := routePattern.FindStringSubmatch(kv)
		if len(groups) == 0 {
			if tagPattern.MatchString(kv) {
				err = multierr.Append(err, fmt.Errorf("malformed static route '%s'", kv))
			}
			continue
		}

		hostname, e := name.ToSNI(groups[hostnameIndex])
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("static route %s: %w", groups[tagIndex], e))
			continue
		}

		if routes.Hosts == nil {
			routes.Hosts = map[string]Route{}
		}

		routes.Hosts[hostname] = Route{
			Endpoint: groups[endpointIndex],
			UseProxy: groups[proxyIndex] != "",
		}
	}

	if err != nil {
		return Routes{}, err
	}

	return routes, nil
}

const (
	tagIndex = iota + 1
	hostnameIndex
	endpointIndex
	proxyIndex
)

var (
	routePattern = regexp.MustCompile(`^ROUTE_([^\s=]+)=([^\s]+) ([^\s]+)(?: (proxy))?$`)
	tagPattern   = regexp.MustCompile(`^ROUTE_[^\s=]+=`)
)

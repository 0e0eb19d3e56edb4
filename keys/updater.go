package keys

import (
	"context"
	"encoding/json"

	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/metrics"
	"github.com/icecave/sniroute/registry"
	"github.com/sirupsen/logrus"
)

// Messages reported to callers of the single-key control surface.
const (
	MessageOK            = "ok"
	MessageEmptyKey      = "key should not be null"
	MessageInvalidBody   = "error parsing json payload"
	MessageTruncateError = "error truncating the map json payload"
)

// Updater applies single-key updates to the per-host namespace of the
// registry, independently of bulk reconfiguration.
type Updater struct {
	Writer  *registry.Writer
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Set stores body verbatim as the endpoint list of the given hostname.
//
// A *backend.ValidationError is returned if key is empty or body is not a
// valid JSON document; nothing is written in that case.
func (u *Updater) Set(ctx context.Context, key string, body []byte) error {
	err := u.set(ctx, key, body)
	u.Metrics.KeyUpdate("set", err)
	return err
}

func (u *Updater) set(ctx context.Context, key string, body []byte) error {
	if key == "" {
		return &backend.ValidationError{Message: MessageEmptyKey}
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return &backend.ValidationError{Message: MessageInvalidBody, Cause: err}
	}

	if err := u.Writer.Set(ctx, registry.HostKey(key), string(body)); err != nil {
		u.Logger.WithError(err).WithField("host", key).Error("failed storing endpoint list")
		return err
	}

	u.Logger.WithField("host", key).Debug("endpoint list updated")

	return nil
}

// Truncate removes every per-host endpoint list. The bulk configuration is
// not affected.
//
// The in-memory registry is always cleared completely; when the registry is
// mirrored to a persistent store, entries written there concurrently with the
// truncation may survive it.
func (u *Updater) Truncate(ctx context.Context) error {
	err := u.Writer.Clear(ctx, registry.Hosts)
	if err != nil {
		u.Logger.WithError(err).Error("failed truncating endpoint lists")
	} else {
		u.Logger.Info("endpoint lists truncated")
	}

	u.Metrics.KeyUpdate("truncate", err)

	return err
}

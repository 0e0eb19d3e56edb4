package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/registry"
)

// Checker is an interface for querying the health of the router.
type Checker interface {
	// Check returns the health-check status.
	Check(ctx context.Context) Status
}

// RegistryChecker reports on the registry used for resolution and on the
// bulk configuration it holds.
type RegistryChecker struct {
	Registry registry.Registry

	// Status returns the outcome of the last bulk configuration, if known.
	Status func() ingest.Status
}

// Check returns unhealthy only if the registry can not be read. A missing or
// rejected configuration is reported in the message, since the router still
// serves the fallback address in that case.
func (checker *RegistryChecker) Check(ctx context.Context) Status {
	raw, ok, err := checker.Registry.Get(ctx, registry.BulkKey)
	if err != nil {
		return Status{false, fmt.Sprintf("The registry can not be read: %s.", err)}
	}

	var last ingest.Status
	if checker.Status != nil {
		last = checker.Status()
	}

	if !ok {
		return Status{true, "The router is accepting connections, but no configuration has been received."}
	}

	table, err := backend.DecodeTable(raw)
	if err != nil {
		return Status{true, "The router is accepting connections, but the stored configuration is unreadable."}
	}

	msg := fmt.Sprintf("The router is accepting connections for %d host(s).", len(table))
	if last == ingest.StatusNOK {
		msg += " The last configuration upload was rejected."
	}

	return Status{true, msg}
}

// RedisChecker checks that the Redis server used for persistence responds.
type RedisChecker struct {
	Client *redis.Client
}

// Check returns information about the health of the Redis connection.
func (checker *RedisChecker) Check(ctx context.Context) Status {
	if err := checker.Client.Ping(ctx).Err(); err != nil {
		return Status{false, fmt.Sprintf("Redis is unreachable: %s.", err)}
	}

	return Status{true, "Redis is reachable."}
}

// All is a checker that is healthy only if every one of its checkers is.
type All []Checker

// Check runs each checker in order and joins their messages.
func (checkers All) Check(ctx context.Context) Status {
	status := Status{IsHealthy: true}
	messages := make([]string, 0, len(checkers))

	for _, c := range checkers {
		s := c.Check(ctx)
		status.IsHealthy = status.IsHealthy && s.IsHealthy
		messages = append(messages, s.Message)
	}

	status.Message = strings.Join(messages, " ")

	return status
}

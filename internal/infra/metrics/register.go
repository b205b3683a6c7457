// Package metrics holds the service's Prometheus collectors. Each file
// declares its collectors and queues them from init; the binary decides
// which registry receives them.
package metrics

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultOnce sync.Once
	queued      []prometheus.Collector
)

func register(cs ...prometheus.Collector) {
	queued = append(queued, cs...)
}

// Register adds every queued collector to reg. Collectors reg already
// knows are skipped, so repeated calls are safe.
func Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range queued {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustRegister registers the collectors with the default registry, once.
func MustRegister() {
	defaultOnce.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// norm lowercases outcome labels so reason codes and "ok" share one shape.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

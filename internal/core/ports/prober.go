package ports

import (
	"context"
	"time"
)

// HealthProber issues one readiness probe against a URL. A nil error means
// the endpoint answered 2xx; the returned duration is the round-trip time.
type HealthProber interface {
	Probe(ctx context.Context, url string) (time.Duration, error)
}

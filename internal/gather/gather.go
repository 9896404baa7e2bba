// Package gather fetches candle history from market-data providers into the
// local store.
package gather

import (
	"context"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It returns once all configured
	// symbols are fetched or ctx is cancelled.
	Run(ctx context.Context) error
}

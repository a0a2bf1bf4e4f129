package metrics

import (
	"context"

	"go.uber.org/multierr"
)

// Fanout publishes every sample to each of its publishers in order. All
// publishers are attempted; their errors are combined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, s Sample) error {
	var err error
	for _, p := range f {
		err = multierr.Append(err, p.Publish(ctx, s))
	}
	return err
}

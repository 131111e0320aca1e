package importer

import (
	"context"
	"fmt"
	"time"

	"feedloft/app/model"
)

// IntervalImporter fills in the body of a periodic check-in item. No
// network is involved; the item exists to mark that the interval
// elapsed.
type IntervalImporter struct {
	clock func() time.Time
}

func NewIntervalImporter() *IntervalImporter {
	return &IntervalImporter{clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock substitutes the time source, used by tests.
func (i *IntervalImporter) WithClock(clock func() time.Time) *IntervalImporter {
	i.clock = clock
	return i
}

func (i *IntervalImporter) Import(ctx context.Context, item model.FeedItem) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interval := time.Duration(item.Source.IntervalSeconds) * time.Second
	content := fmt.Sprintf("Scheduled check-in generated at %s. The next one is due in %s.",
		i.clock().Format(time.RFC3339), interval)

	return &Result{
		Update:  ItemUpdate{Content: &content},
		Refetch: true,
	}, nil
}

package tasks

import (
	"context"

	"feedloft/app/model"
)

// TaskSchedulerInterface is the surface the main application uses to
// manage background processing.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// QueueProcessorInterface drives one import queue entry to completion.
type QueueProcessorInterface interface {
	ProcessQueueItem(ctx context.Context, queueItem model.ImportQueueItem) error
}

// IntervalIngestorInterface emits the periodic item for a due interval
// subscription.
type IntervalIngestorInterface interface {
	IngestIntervalTick(ctx context.Context, sub model.UserFeedSubscription) error
}

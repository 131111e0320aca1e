package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedloft/app/database"
)

type IntervalTickTask struct {
	Task
	subRepo  database.SubscriptionStore
	ingestor IntervalIngestorInterface
}

func NewIntervalTickTask(subRepo database.SubscriptionStore, ingestor IntervalIngestorInterface) *IntervalTickTask {
	return &IntervalTickTask{
		Task:     NewTask(TaskTypeIntervalTick),
		subRepo:  subRepo,
		ingestor: ingestor,
	}
}

func (t *IntervalTickTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	subs, err := t.subRepo.GetDueIntervalSubscriptions(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to get due interval subscriptions: %w", err)
	}

	if len(subs) == 0 {
		slog.Debug("No interval subscriptions due")
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.ingestor.IngestIntervalTick(ctx, sub); err != nil {
			slog.Error("Failed to ingest interval tick", "subscription_id", sub.ID, "error", err)
			errorCount++
		} else {
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

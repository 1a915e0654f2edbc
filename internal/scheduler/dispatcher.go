package scheduler

import (
	"context"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/logger"
)

const dispatchInterval = 2 * time.Second

// Dispatcher is the Redis-independent safety net: a plain ticker loop that
// runs a queue pass every couple of seconds straight against the database.
// With Redis up it mostly finds an empty queue; with Redis down it keeps
// sends flowing.
type Dispatcher struct {
	processor QueueProcessor
	log       *logger.Logger
}

func NewDispatcher(processor QueueProcessor, log *logger.Logger) *Dispatcher {
	return &Dispatcher{processor: processor, log: log}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.processor == nil {
		return
	}

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := d.processor.ProcessQueueOnce(ctx, 0)
		if err != nil {
			d.log.Warn("dispatcher pass failed", "error", err)
			continue
		}
		if res.Processed > 0 || res.Recovered > 0 {
			d.log.Info("dispatcher pass finished",
				"processed", res.Processed, "failed", res.Failed, "recovered", res.Recovered)
		}
	}
}

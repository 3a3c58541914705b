package main

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"
)

// runs several independent workers against the same queue. Each worker owns
// its own processed counter; the group total is a sum computed after all of
// them return, there is no shared counter.
type WorkerGroup struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewWorkerGroup(ctx context.Context, awsConfig aws.Config, config WorkerConfig, workerCount int, deadLetters DeadLetterStore) (*WorkerGroup, error) {
	group := &WorkerGroup{}

	for i := 0; i < workerCount; i++ {
		worker, err := NewWorker(ctx, awsConfig, config, deadLetters)
		if err != nil {
			return nil, err
		}
		group.workers = append(group.workers, worker)
	}

	return group, nil
}

// Run blocks until every worker has stopped and returns the summed count.
func (g *WorkerGroup) Run(ctx context.Context) int {
	for i, worker := range g.workers {
		g.wg.Add(1)
		go func(workerID int, w *Worker) {
			defer g.wg.Done()

			count, err := w.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Int("worker_id", workerID).Msg("Worker failed")
			}
			log.Debug().Int("worker_id", workerID).Int("processed", count).Msg("Worker finished")
		}(i, worker)
	}

	g.wg.Wait()
	return g.Total()
}

// Total sums the per-worker counters.
func (g *WorkerGroup) Total() int {
	total := 0
	for _, worker := range g.workers {
		total += worker.ProcessedCount()
	}
	return total
}

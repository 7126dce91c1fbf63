package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

// BatchResult is the outcome of one project in a batch.
type BatchResult struct {
	Project string
	Result  *Result
	Err     error
}

// RunBatch generates every project on a bounded worker pool. Projects are
// independent: one failing does not stop the others. Results keep the
// order of projects.
func (p *Pipeline) RunBatch(ctx context.Context, projects []string) []BatchResult {
	workers := p.workers(len(projects))
	if warning := p.checkMemoryPressure(workers); warning != "" {
		p.logger.Warnw("memory pressure warning", "warning", warning, logger.FieldWorkers, workers)
	}
	p.logger.Infow("batch started", logger.FieldCount, len(projects), logger.FieldWorkers, workers)

	results := make([]BatchResult, len(projects))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range projects {
		results[i].Project = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = errors.Wrap(err, "batch cancelled")
				return nil
			}
			results[i].Result, results[i].Err = p.Generate(ctx, path)
			if results[i].Err != nil {
				p.logger.Warnw("batch project failed", logger.FieldPath, path, logger.FieldError, results[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Infow("batch complete", logger.FieldCount, len(projects), "failed", failed)
	return results
}

func (p *Pipeline) workers(jobs int) int {
	n := p.cfg.Batch.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > jobs && jobs > 0 {
		n = jobs
	}
	return n
}

// memoryPerWorker is a rough resident cost of one in-flight generation.
const memoryPerWorker = 256 << 20

// checkMemoryPressure returns a warning when the system is already above
// the configured usage threshold or cannot hold every worker, "" otherwise.
func (p *Pipeline) checkMemoryPressure(workers int) string {
	v, err := mem.VirtualMemory()
	if err != nil {
		p.logger.Debugw("memory stats unavailable", logger.FieldError, err)
		return ""
	}
	return memoryWarning(v.UsedPercent, v.Available, workers, p.cfg.Batch.MemoryWarnPercent)
}

func memoryWarning(usedPercent float64, available uint64, workers int, threshold float64) string {
	if threshold > 0 && usedPercent > threshold {
		return fmt.Sprintf("system memory %.0f%% used, above the %.0f%% threshold", usedPercent, threshold)
	}
	if need := uint64(workers) * memoryPerWorker; available < need {
		return fmt.Sprintf("%d workers may need %d MiB but only %d MiB is available",
			workers, need>>20, available>>20)
	}
	return ""
}

package reviewclient

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// SubmitSummary counts the outcomes of a batch submission.
type SubmitSummary struct {
	Submitted int           `json:"submitted"`
	Accepted  int           `json:"accepted"`
	Duplicate int           `json:"duplicate"`
	Throttled int           `json:"throttled"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
	Errors    []error       `json:"-"`
}

// LoadJobsFile reads a YAML (or JSON) list of jobs.
func LoadJobsFile(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJobsFile, err)
	}
	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrJobsFile, path, err)
	}
	for i, j := range jobs {
		if j.JobID == "" || j.ImageID == "" || j.ImageRef == "" {
			return nil, fmt.Errorf("%w: entry %d needs job_id, image_id and image_ref", ErrJobsFile, i)
		}
	}
	return jobs, nil
}

// SubmitJobs posts jobs with a pool of workers. workers < 1 uses NumCPU.
// A 429 counts as throttled; the job is not retried.
func (c *Client) SubmitJobs(ctx context.Context, jobs []Job, workers int) SubmitSummary {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	start := time.Now()

	var (
		accepted, duplicate, throttled, failed, submitted int64

		mu   sync.Mutex
		errs []error
	)

	ch := make(chan Job, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				atomic.AddInt64(&submitted, 1)
				ack, err := c.SubmitJob(ctx, job)
				switch {
				case IsStatus(err, http.StatusTooManyRequests):
					atomic.AddInt64(&throttled, 1)
				case err != nil:
					atomic.AddInt64(&failed, 1)
					mu.Lock()
					errs = append(errs, fmt.Errorf("job %s: %w", job.JobID, err))
					mu.Unlock()
				case ack.Duplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&accepted, 1)
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case ch <- job:
			}
		}
	}()
	wg.Wait()

	return SubmitSummary{
		Submitted: int(submitted),
		Accepted:  int(accepted),
		Duplicate: int(duplicate),
		Throttled: int(throttled),
		Failed:    int(failed),
		Duration:  time.Since(start),
		Errors:    errs,
	}
}

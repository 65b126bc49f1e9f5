package sim

import (
	"context"
	"sync"
	"time"
)

// LoadConfig describes a concurrent query run against one engine.
type LoadConfig struct {
	Workers int
	Queries int // per worker
	// Pick chooses the index for a worker's n-th query.
	Pick func(worker, n int) int
	// Discard drops samples and only counts them.
	Discard bool
}

type LoadReport struct {
	Queries    int
	Errors     int
	Elapsed    time.Duration
	MaxLatency time.Duration
	// Samples[w] holds worker w's samples in issue order.
	Samples [][]Sample
}

// QueriesPerSecond is zero when nothing ran.
func (r *LoadReport) QueriesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Queries) / r.Elapsed.Seconds()
}

// Hammer runs cfg.Workers goroutines issuing queries concurrently. It stops
// early if ctx is canceled and returns what completed along with ctx.Err().
func Hammer(ctx context.Context, e *Engine, cfg LoadConfig) (*LoadReport, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	pick := cfg.Pick
	if pick == nil {
		n := e.Population().Len()
		pick = func(worker, i int) int { return (worker + i) % n }
	}

	samples := make([][]Sample, cfg.Workers)
	okCounts := make([]int, cfg.Workers)
	errCounts := make([]int, cfg.Workers)
	latencies := make([]time.Duration, cfg.Workers)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			var out []Sample
			if !cfg.Discard {
				out = make([]Sample, 0, cfg.Queries)
			}
			for i := 0; i < cfg.Queries; i++ {
				if ctx.Err() != nil {
					break
				}

				t0 := time.Now()
				s, err := e.Query(pick(worker, i))
				if lat := time.Since(t0); lat > latencies[worker] {
					latencies[worker] = lat
				}
				if err != nil {
					errCounts[worker]++
					continue
				}
				okCounts[worker]++
				if !cfg.Discard {
					out = append(out, s)
				}
			}
			samples[worker] = out
		}(w)
	}
	wg.Wait()

	report := &LoadReport{Elapsed: time.Since(start), Samples: samples}
	for w := range samples {
		report.Queries += okCounts[w] + errCounts[w]
		report.Errors += errCounts[w]
		if latencies[w] > report.MaxLatency {
			report.MaxLatency = latencies[w]
		}
	}

	return report, ctx.Err()
}

package agent

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/store"
	"github.com/rahul/planflow/internal/workflow"
)

// ThreadRunner is the part of the workflow engine the sweeper drives.
type ThreadRunner interface {
	Threads(ctx context.Context, status workflow.Status) ([]store.ThreadInfo, error)
	Continue(ctx context.Context, threadID string) (*workflow.Result, error)
}

// Recovery periodically continues runs that were interrupted between
// nodes, for example by a crash or a shutdown mid-run.
type Recovery struct {
	Engine   ThreadRunner
	Interval time.Duration
	// MinAge skips threads updated more recently, which are probably
	// still being driven by another process.
	MinAge time.Duration
	// OnResult receives the outcome of every continued run.
	OnResult func(*workflow.Result)
}

func NewRecovery(engine ThreadRunner, onResult func(*workflow.Result)) *Recovery {
	return &Recovery{
		Engine:   engine,
		Interval: 30 * time.Second,
		MinAge:   2 * time.Minute,
		OnResult: onResult,
	}
}

func (r *Recovery) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	log.Println("Recovery sweeper started...")
	r.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep continues every eligible interrupted thread and returns how many
// were picked up.
func (r *Recovery) Sweep(ctx context.Context) int {
	infos, err := r.Engine.Threads(ctx, workflow.StatusRunning)
	if err != nil {
		log.Printf("Error listing interrupted threads: %v", err)
		return 0
	}

	active := map[string]bool{}
	for _, s := range observability.ActiveThreads() {
		active[s.ThreadID] = true
	}

	count := 0
	for _, info := range infos {
		if ctx.Err() != nil {
			return count
		}
		if active[info.ThreadID] || time.Since(info.UpdatedAt) < r.MinAge {
			continue
		}

		log.Printf("Continuing interrupted thread %s at %s", info.ThreadID, info.Node)
		res, err := r.Engine.Continue(ctx, info.ThreadID)
		if errors.Is(err, workflow.ErrNotRunning) {
			continue
		}
		if err != nil {
			log.Printf("Error continuing thread %s: %v", info.ThreadID, err)
			continue
		}
		count++
		if r.OnResult != nil {
			r.OnResult(res)
		}
	}
	return count
}

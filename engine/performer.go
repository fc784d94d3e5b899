package engine

import (
	"context"
	"sync"
	"time"
)

// defaultWaitActivity bounds how long one WaitActivity call inside the
// performer loop may block, so Stop is never kept waiting longer than
// this for the loop to notice cancellation.
const defaultWaitActivity = time.Second

// Performer is the convenience background goroutine that repeatedly
// calls Perform then WaitActivity until stopped. Its lifecycle is a
// context cancelled by Stop, joined through a sync.WaitGroup, rather
// than a raw thread plus atomic running flag.
type Performer struct {
	engine *Engine
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPerformer starts driving e on a new goroutine immediately.
func NewPerformer(e *Engine) *Performer {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Performer{engine: e, cancel: cancel}
	p.wg.Add(1)
	go p.loop(ctx)

	return p
}

func (p *Performer) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.engine.Perform()
		p.engine.WaitActivity(defaultWaitActivity)
	}
}

// Stop cancels the performer's loop and blocks until it has exited.
func (p *Performer) Stop() {
	p.cancel()
	p.wg.Wait()
}

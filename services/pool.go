package services

import (
	"log"
	"sync"
	"time"

	"github.com/capifyhq/capify/models"
)

const (
	// PageView events flush when this many are queued, or on every timer
	// tick, whichever comes first.
	DefaultBatchSize     = 100
	DefaultBatchInterval = 60 * time.Second
)

type pooledEvent struct {
	fields     models.EventFields
	customData map[string]interface{}
}

// PageViewPool accumulates PageView events and flushes them through the
// relay in batches, so the highest-volume event type doesn't cost one Graph
// API round-trip each. The queue is in-memory only; queued events are lost
// on restart, and items that fail during a flush are logged and dropped.
type PageViewPool struct {
	relay     *Relay
	batchSize int

	mu    sync.Mutex
	queue []pooledEvent

	started  bool
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

func NewPageViewPool(relay *Relay, batchSize int) *PageViewPool {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PageViewPool{
		relay:     relay,
		batchSize: batchSize,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enqueue adds a page-view event to the pool. When the size threshold is
// reached the flush runs on the caller's goroutine.
func (p *PageViewPool) Enqueue(fields models.EventFields, customData map[string]interface{}) {
	p.mu.Lock()
	p.queue = append(p.queue, pooledEvent{fields: fields, customData: customData})
	full := len(p.queue) >= p.batchSize
	p.mu.Unlock()

	if full {
		p.Flush()
	}
}

// Len reports how many events are currently queued.
func (p *PageViewPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush swaps the queue out atomically and relays every item sequentially.
// A failure on one item is logged and the loop continues to the next.
func (p *PageViewPool) Flush() {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, event := range batch {
		result := p.relay.Send("PageView", event.fields, event.customData)
		if !result.Success {
			log.Printf("PageView batch item failed (%s): %s", result.Kind, result.Message)
		}
	}
}

// Start runs the periodic flush on its own goroutine until Stop is called.
// The ticker keeps firing regardless of per-flush outcomes.
func (p *PageViewPool) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	p.started = true
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Flush()
			case <-p.quit:
				// Drain whatever is queued before shutting down.
				p.Flush()
				return
			}
		}
	}()
}

// Stop halts the timer and performs a final flush. Safe to call more than once.
func (p *PageViewPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		if p.started {
			<-p.done
		}
	})
}

package staking

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// publisher delivers committed logs to feed subscribers on its own goroutine,
// in commit order. Logs wait in an unbounded queue, so a slow subscriber
// delays delivery but never the operation that committed them.
type publisher struct {
	feed event.Feed

	mu    sync.Mutex
	queue []*types.Log

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newPublisher() *publisher {
	p := &publisher{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *publisher) subscribe(ch chan<- *types.Log) event.Subscription {
	return p.feed.Subscribe(ch)
}

// publish queues logs and returns immediately.
func (p *publisher) publish(logs []*types.Log) {
	if len(logs) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, logs...)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *publisher) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			batch := p.queue
			p.queue = nil
			p.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, l := range batch {
				select {
				case <-p.quit:
					return
				default:
				}
				p.feed.Send(l)
			}
		}
	}
}

// close stops delivery. Queued logs are dropped; a send already blocked on a
// subscriber ends when that subscriber reads or unsubscribes.
func (p *publisher) close() {
	p.closeOnce.Do(func() { close(p.quit) })
}

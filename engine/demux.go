package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Demux is the single consumer of the engine's output channel. It fans
// every server message to each subscriber's bounded queue, so both the
// network broadcaster and in-process strategies observe the stream while
// the channel itself stays single-consumer. A subscriber that falls
// behind loses messages rather than stalling the others.
type Demux struct {
	srv *Server

	mu   sync.Mutex
	subs []chan ServerMessage

	dropped atomic.Uint64
	running atomic.Bool
	done    chan struct{}
}

// NewDemux attaches to srv's output channel.
func NewDemux(srv *Server) *Demux {
	return &Demux{srv: srv}
}

// Subscribe registers a new sink before or after Start. The returned
// channel is never closed; readers stop on their own shutdown signal.
func (d *Demux) Subscribe(buffer int) <-chan ServerMessage {
	if buffer <= 0 {
		buffer = 1024
	}
	ch := make(chan ServerMessage, buffer)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Dropped returns the number of messages discarded across all sinks.
func (d *Demux) Dropped() uint64 { return d.dropped.Load() }

// Start spawns the fan-out goroutine.
func (d *Demux) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.done = make(chan struct{})
	go d.loop()
}

// Stop halts the fan-out goroutine and waits for it.
func (d *Demux) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	<-d.done
}

func (d *Demux) loop() {
	defer close(d.done)

	var warned bool
	for d.running.Load() {
		moved := 0
		var sm ServerMessage
		for d.srv.NextServerMessage(&sm) {
			moved++
			d.mu.Lock()
			for _, ch := range d.subs {
				select {
				case ch <- sm:
				default:
					d.dropped.Add(1)
					if !warned {
						warned = true
						log.Printf("[demux] slow subscriber, dropping messages")
					}
				}
			}
			d.mu.Unlock()
		}
		if moved == 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
}

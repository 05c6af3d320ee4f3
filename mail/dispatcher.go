package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("mail queue full")

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("mail dispatcher closed")

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	// DropIfFull makes Enqueue drop silently (counted) instead of returning ErrQueueFull.
	DropIfFull bool
	// SendTimeout bounds one Sender.Send call.
	SendTimeout time.Duration
	// OnResult is called from the worker after every send attempt.
	OnResult func(msg Message, err error)
}

// Dispatcher asynchronously forwards messages to a Sender.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	sent      atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	// mu orders Enqueue sends before Close closes done, so the worker's
	// final drain sees every accepted message.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher worker.
func NewDispatcher(cfg Config, sender Sender) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if sender == nil {
		sender = LogSender{}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	err := d.sender.Send(ctx, msg)
	cancel()

	if err != nil {
		d.failed.Add(1)
	} else {
		d.sent.Add(1)
	}
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(msg, err)
	}
}

// Enqueue schedules msg for delivery without waiting for it.
func (d *Dispatcher) Enqueue(msg Message) error {
	if d == nil {
		return ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.ch <- msg:
		return nil
	default:
		d.dropped.Add(1)
		if d.cfg.DropIfFull {
			return nil
		}
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for the queue to drain. Every
// message Enqueue accepted before Close is delivered or counted as failed.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Sent returns the number of delivered messages.
func (d *Dispatcher) Sent() uint64 {
	if d == nil {
		return 0
	}
	return d.sent.Load()
}

// Failed returns the number of messages the Sender rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

// Dropped returns the number of messages refused because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

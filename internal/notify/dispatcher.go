package notify

import (
    "context"
    "log"
    "sync"
)

// Sink delivers one message.  The RabbitMQ publisher and the log sender
// both satisfy it.
type Sink interface {
    Deliver(ctx context.Context, m Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, m Message) error

func (f SinkFunc) Deliver(ctx context.Context, m Message) error { return f(ctx, m) }

// Dispatcher is a bounded in-process queue drained by a fixed pool of
// worker goroutines.  Submit never blocks the request path: when the
// buffer is full the message is dropped and logged.
type Dispatcher struct {
    sink    Sink
    ch      chan Message
    workers int

    mu     sync.RWMutex
    closed bool
    wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given buffer size and
// worker count.  Call Start before submitting.
func NewDispatcher(sink Sink, buffer, workers int) *Dispatcher {
    if buffer < 1 {
        buffer = 1
    }
    if workers < 1 {
        workers = 1
    }
    return &Dispatcher{sink: sink, ch: make(chan Message, buffer), workers: workers}
}

// Start launches the workers.  They exit once Close has been called and
// the buffer is drained.
func (d *Dispatcher) Start(ctx context.Context) {
    for i := 0; i < d.workers; i++ {
        d.wg.Add(1)
        go func() {
            defer d.wg.Done()
            for m := range d.ch {
                if err := d.sink.Deliver(ctx, m); err != nil {
                    log.Printf("notify: deliver %s booking_id=%d payment_id=%d failed: %v", m.Kind, m.BookingID, m.PaymentID, err)
                }
            }
        }()
    }
}

// Submit enqueues m and reports whether it was accepted.
func (d *Dispatcher) Submit(m Message) bool {
    d.mu.RLock()
    defer d.mu.RUnlock()
    if d.closed {
        log.Printf("notify: dispatcher closed, dropping %s booking_id=%d", m.Kind, m.BookingID)
        return false
    }
    select {
    case d.ch <- m:
        return true
    default:
        log.Printf("notify: queue full, dropping %s booking_id=%d", m.Kind, m.BookingID)
        return false
    }
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
    d.mu.Lock()
    if d.closed {
        d.mu.Unlock()
        return
    }
    d.closed = true
    close(d.ch)
    d.mu.Unlock()
    d.wg.Wait()
}

package queue

import (
    "context"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/event-ticketing/internal/config"
    "github.com/iliyamo/event-ticketing/internal/notify"
)

// Publisher publishes notifications to a durable queue.  It implements
// notify.Sink so the dispatcher workers can use it directly.  Every
// publish dials its own connection.
type Publisher struct {
    URL   string
    Queue string
}

// NewPublisher returns a publisher for cfg.
func NewPublisher(cfg config.QueueConfig) *Publisher {
    return &Publisher{URL: cfg.URL, Queue: cfg.Queue}
}

var _ notify.Sink = (*Publisher)(nil)

// Deliver publishes m as a persistent message.  Errors are logged and
// returned; the dispatcher does not retry.
func (p *Publisher) Deliver(ctx context.Context, m notify.Message) error {
    body, err := Encode(m)
    if err != nil {
        log.Printf("rabbitmq: encode %s failed: %v", m.Kind, err)
        return err
    }

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    err = ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Type:         string(m.Kind),
        Body:         body,
    })
    if err != nil {
        log.Printf("rabbitmq: publish %s failed: %v", m.Kind, err)
        return err
    }
    return nil
}

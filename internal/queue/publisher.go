package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/traafik/auth-svc/internal/metrics"
)

// DefaultQueue is the durable queue account events are routed to.
const DefaultQueue = "auth.events"

const (
	publishBuffer  = 256
	publishTimeout = 5 * time.Second
	dialTimeout    = 3 * time.Second
)

// ErrBufferFull is returned by Publish when the worker is not keeping up
// and the event was dropped.
var ErrBufferFull = errors.New("event buffer full")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

// Publisher hands events to a background worker so request handlers
// never wait on the broker.  Events are best effort: when the broker is
// unreachable they are logged and dropped.
type Publisher struct {
	url     string
	queue   string
	log     echo.Logger
	metrics *metrics.Recorder
	buf     chan AccountEvent
	dial    dialFunc
}

// NewPublisher returns a publisher for the durable queue name on the
// broker at url.  Call Run to start delivering.
func NewPublisher(url, name string, logger echo.Logger, rec *metrics.Recorder) *Publisher {
	if name == "" {
		name = DefaultQueue
	}
	return &Publisher{
		url:     url,
		queue:   name,
		log:     logger,
		metrics: rec,
		buf:     make(chan AccountEvent, publishBuffer),
		dial:    dialAMQP,
	}
}

// Publish enqueues ev without blocking.
func (p *Publisher) Publish(_ context.Context, ev AccountEvent) error {
	select {
	case p.buf <- ev:
		return nil
	default:
		p.metrics.Event(string(ev.Type), ErrBufferFull)
		return ErrBufferFull
	}
}

// Run delivers queued events until ctx is cancelled.  The broker
// connection is opened lazily and re-dialled after a failed publish.
func (p *Publisher) Run(ctx context.Context) {
	var (
		ch        channel
		closeConn func() error
	)
	reset := func() {
		if ch != nil {
			_ = ch.Close()
			_ = closeConn()
		}
		ch, closeConn = nil, nil
	}
	defer reset()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.buf:
			err := p.deliver(ctx, &ch, &closeConn, ev)
			if err != nil {
				// one reconnect per event, then drop it
				reset()
				err = p.deliver(ctx, &ch, &closeConn, ev)
			}
			if err != nil {
				reset()
				p.log.Warnf("rabbitmq: dropping %s event for %s: %v", ev.Type, ev.AccountID, err)
			}
			p.metrics.Event(string(ev.Type), err)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, ch *channel, closeConn *func() error, ev AccountEvent) error {
	if *ch == nil {
		c, cl, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		if _, err := c.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			_ = c.Close()
			_ = cl()
			return fmt.Errorf("queue declare: %w", err)
		}
		*ch, *closeConn = c, cl
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return (*ch).PublishWithContext(pctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		Body:         body,
	})
}

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn.Close, nil
}

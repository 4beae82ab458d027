package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"scribeq/internal/config"
)

const (
	amqpDialTimeout = 5 * time.Second
	// amqpRedialDelay bounds how often a publish may block on re-dialing a
	// broker that is down.
	amqpRedialDelay = 5 * time.Second
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// amqpDialer opens a connection and a channel with the exchange declared.
type amqpDialer func() (amqpChannel, io.Closer, error)

// AMQPPublisher publishes events to a durable topic exchange using the event
// type as routing key. A closed connection or channel is re-dialed on the
// next publish.
type AMQPPublisher struct {
	mu       sync.Mutex
	dial     amqpDialer
	exchange string
	now      func() time.Time

	conn     io.Closer
	channel  amqpChannel
	closed   chan *amqp.Error
	lastDial time.Time
	dialErr  error
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(cfg config.Events) (*AMQPPublisher, error) {
	url, exchange := cfg.AMQPURL, cfg.AMQPExchange
	p := newAMQPPublisher(exchange, func() (amqpChannel, io.Closer, error) {
		return dialAMQP(url, exchange)
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(exchange string, dial amqpDialer) *AMQPPublisher {
	return &AMQPPublisher{dial: dial, exchange: exchange, now: time.Now}
}

func dialAMQP(url, exchange string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(amqpDialTimeout)})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return channel, conn, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return publishError("amqp", evt, err)
	}
	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannelLocked(); err != nil {
		return publishError("amqp", evt, err)
	}
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		string(evt.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.OccurredAt,
		},
	)
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			p.dropLocked()
		}
		return publishError("amqp", evt, err)
	}
	return nil
}

// ensureChannelLocked re-dials when the broker closed the channel or the
// previous dial failed long enough ago.
func (p *AMQPPublisher) ensureChannelLocked() error {
	if p.channel != nil {
		select {
		case <-p.closed:
			p.dropLocked()
		default:
			return nil
		}
	}
	if p.dialErr != nil && p.now().Sub(p.lastDial) < amqpRedialDelay {
		return fmt.Errorf("amqp reconnect pending: %w", p.dialErr)
	}
	return p.connectLocked()
}

func (p *AMQPPublisher) connectLocked() error {
	p.lastDial = p.now()
	channel, conn, err := p.dial()
	if err != nil {
		p.dialErr = err
		return err
	}
	p.dialErr = nil
	p.channel = channel
	p.conn = conn
	p.closed = channel.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (p *AMQPPublisher) dropLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel, p.conn, p.closed = nil, nil, nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	if cerr := p.conn.Close(); err == nil && !errors.Is(cerr, amqp.ErrClosed) {
		err = cerr
	}
	p.channel, p.conn, p.closed = nil, nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

var (
	ErrQueueFull        = errors.New("email queue is full")
	ErrDispatcherClosed = errors.New("email dispatcher is closed")
	ErrNoSender         = errors.New("email sender not configured")
)

const defaultSendTimeout = 30 * time.Second

// Result is the outcome of one confirmation email. With a durable queue
// configured, success means the message was queued.
type Result struct {
	Email       string
	OrderNumber string
	Err         error
}

func (r Result) Success() bool { return r.Err == nil }

// GiftCardLister loads the gift cards persisted for an order.
type GiftCardLister interface {
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.GiftCard, error)
}

// Queue is a durable message queue (SQS in production).
type Queue interface {
	SendMessage(ctx context.Context, body string) error
}

type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Queue, when set, replaces the in-process queue: messages are sent
	// to it and delivered by HandleQueueMessage on the consumer side.
	Queue       Queue
	SendTimeout time.Duration
}

type queuedEmail struct {
	Email string             `json:"email"`
	Data  *OrderConfirmation `json:"data"`
}

type job struct {
	ctx    context.Context
	email  string
	data   *OrderConfirmation
	result chan Result
}

// Dispatcher sends order confirmations off the request path. Callers get a
// channel with exactly one Result which they may read or ignore.
type Dispatcher struct {
	sender    EmailSender
	giftCards GiftCardLister
	queue     Queue
	metrics   awspkg.MetricsRecorder
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

func NewDispatcher(sender EmailSender, giftCards GiftCardLister, metrics awspkg.MetricsRecorder, logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	d := &Dispatcher{
		sender:    sender,
		giftCards: giftCards,
		queue:     opts.Queue,
		metrics:   metrics,
		logger:    logger,
		timeout:   opts.SendTimeout,
	}
	if d.queue == nil {
		d.jobs = make(chan job, opts.QueueSize)
		for i := 0; i < opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	}
	return d
}

// SendOrderConfirmation queues the confirmation email and returns at once.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, email string, data *OrderConfirmation) <-chan Result {
	result := make(chan Result, 1)
	if d.queue != nil {
		result <- d.enqueueDurable(ctx, email, data)
		return result
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		result <- Result{Email: email, OrderNumber: data.OrderNumber, Err: ErrDispatcherClosed}
		return result
	}
	select {
	case d.jobs <- job{ctx: ctx, email: email, data: data, result: result}:
	default:
		logger.Warn(ctx, d.logger, "Email queue full; dropping order confirmation",
			zap.String("order_number", data.OrderNumber))
		d.recordOutcome(ctx, ErrQueueFull)
		result <- Result{Email: email, OrderNumber: data.OrderNumber, Err: ErrQueueFull}
	}
	return result
}

func (d *Dispatcher) enqueueDurable(ctx context.Context, email string, data *OrderConfirmation) Result {
	res := Result{Email: email, OrderNumber: data.OrderNumber}
	body, err := json.Marshal(queuedEmail{Email: email, Data: data})
	if err != nil {
		res.Err = err
		return res
	}
	if err := d.queue.SendMessage(ctx, string(body)); err != nil {
		logger.Error(ctx, d.logger, "Failed to queue order confirmation", err,
			zap.String("order_number", data.OrderNumber))
		d.recordOutcome(ctx, err)
		res.Err = err
	}
	return res
}

// HandleQueueMessage delivers one message taken off the durable queue. A
// returned error leaves the message on the queue for redelivery.
func (d *Dispatcher) HandleQueueMessage(ctx context.Context, body string) error {
	var msg queuedEmail
	if err := json.Unmarshal([]byte(body), &msg); err != nil || msg.Data == nil || msg.Email == "" {
		d.logger.Error("Discarding malformed email message", zap.Error(err))
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.Deliver(sctx, msg.Email, msg.Data)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
		err := d.Deliver(ctx, j.email, j.data)
		cancel()
		j.result <- Result{Email: j.email, OrderNumber: j.data.OrderNumber, Err: err}
	}
}

// Deliver renders and sends the confirmation now. Gift cards missing from
// data are re-read from storage; if that read fails the email goes out
// without them.
func (d *Dispatcher) Deliver(ctx context.Context, email string, data *OrderConfirmation) error {
	d.fillGiftCards(ctx, data)

	err := d.send(ctx, email, data)
	d.recordOutcome(ctx, err)
	if err != nil {
		logger.Error(ctx, d.logger, "Order confirmation email failed", err,
			zap.String("order_number", data.OrderNumber))
		return err
	}
	logger.Info(ctx, d.logger, "Order confirmation email sent",
		zap.String("order_number", data.OrderNumber),
		zap.Int("gift_cards", len(data.GiftCards)))
	return nil
}

func (d *Dispatcher) send(ctx context.Context, email string, data *OrderConfirmation) error {
	if d.sender == nil {
		return ErrNoSender
	}
	subject, body, err := RenderOrderConfirmation(data)
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	return d.sender.SendEmail(ctx, email, subject, body)
}

func (d *Dispatcher) fillGiftCards(ctx context.Context, data *OrderConfirmation) {
	if !data.HasGiftCertificates || len(data.GiftCards) > 0 || d.giftCards == nil {
		return
	}
	orderID, err := uuid.Parse(data.OrderID)
	if err != nil {
		return
	}
	cards, err := d.giftCards.FindByOrderID(ctx, orderID)
	if err != nil {
		logger.Warn(ctx, d.logger, "Could not load gift cards for confirmation email",
			zap.String("order_number", data.OrderNumber), zap.Error(err))
		return
	}
	data.SetGiftCards(cards)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, err error) {
	if d.metrics == nil {
		return
	}
	name := awspkg.MetricConfirmationsSent
	if err != nil {
		name = awspkg.MetricConfirmationsFailed
	}
	_ = d.metrics.RecordCount(context.WithoutCancel(ctx), name, nil)
}

// Close stops accepting emails and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.jobs != nil {
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"MarketSim/internal/domain/models"
	domrepo "MarketSim/internal/domain/repository"
	"MarketSim/internal/service/ratelimit"
)

var (
	ErrInboxFull = errors.New("trade inbox full")
	ErrThrottled = errors.New("trade throttled")
)

// TradeInbox sits between the intake surfaces (HTTP, Kafka) and the simulator.
// It validates, throttles and buffers orders until the next tick drains them,
// so producers never touch simulation state directly.
type TradeInbox struct {
	metrics  domrepo.Metrics
	validate *validator.Validate
	maxRPS   int
	bufSize  int
	bufCh    chan models.TradeOrder
	limiter  *ratelimit.Limiter // per asset
	// optional format transform hook
	transform func(models.TradeOrder) models.TradeOrder
	now       func() time.Time
}

type InboxOption func(*TradeInbox)

// WithMaxRPS sets the max orders per second per asset. Zero disables throttling.
func WithMaxRPS(n int) InboxOption {
	return func(p *TradeInbox) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many orders may wait for the next tick.
func WithBufferSize(n int) InboxOption {
	return func(p *TradeInbox) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook applied to every order before validation.
func WithTransform(fn func(models.TradeOrder) models.TradeOrder) InboxOption {
	return func(p *TradeInbox) { p.transform = fn }
}

func NewTradeInbox(metrics domrepo.Metrics, opts ...InboxOption) *TradeInbox {
	p := &TradeInbox{
		metrics:  metrics,
		validate: validator.New(),
		maxRPS:   20,   // default throttle per asset
		bufSize:  1000, // default buffer
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.TradeOrder, p.bufSize)
	p.limiter = ratelimit.New(float64(p.maxRPS), 1)
	return p
}

// Submit validates and queues an order. source labels the intake surface for metrics.
func (p *TradeInbox) Submit(ctx context.Context, source string, o models.TradeOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.transform != nil {
		o = p.transform(o)
	}
	if err := p.validate.Struct(o); err != nil {
		p.recordError("inbox_validate")
		return fmt.Errorf("validate order: %w", err)
	}
	if !p.limiter.AllowAt(o.AssetID, p.now()) {
		p.recordError("inbox_throttle")
		return ErrThrottled
	}
	select {
	case p.bufCh <- o:
		if p.metrics != nil {
			p.metrics.RecordTradeIngested(source)
		}
		return nil
	default:
		p.recordError("inbox_full")
		return ErrInboxFull
	}
}

// Drain removes up to max queued orders (all when max <= 0) in arrival order.
func (p *TradeInbox) Drain(max int) []models.TradeOrder {
	var out []models.TradeOrder
	for max <= 0 || len(out) < max {
		select {
		case o := <-p.bufCh:
			out = append(out, o)
		default:
			return out
		}
	}
	return out
}

// Len reports how many orders are waiting.
func (p *TradeInbox) Len() int { return len(p.bufCh) }

func (p *TradeInbox) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

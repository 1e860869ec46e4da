// Package payment simulates card authorization ahead of checkout. No money
// moves; the outcome depends only on the card number.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

// DefaultDelay is how long an authorization takes.
const DefaultDelay = 2 * time.Second

var (
	// ErrDeclined is returned when the issuer refuses the charge.
	ErrDeclined = errors.New("payment declined")

	// ErrCardExpired is returned for a card whose expiry month has passed.
	ErrCardExpired = errors.New("card expired")

	// ErrInvalidAmount is returned for a zero or negative charge.
	ErrInvalidAmount = errors.New("amount must be positive")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Card is what the customer types into the payment form.
type Card struct {
	Number string `validate:"required,numeric,len=16"`
	Expiry string `validate:"required,datetime=01/06"` // MM/YY
	CVV    string `validate:"required,numeric,len=3"`
}

// Last4 returns the last four digits of the card number.
func (c Card) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Validate checks the card's format.
func (c Card) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}
	return nil
}

// expired reports whether the card is past the end of its expiry month.
// YY is always 20YY; card years never fall in the previous century.
func (c Card) expired(now time.Time) bool {
	mm, yy, ok := strings.Cut(c.Expiry, "/")
	if !ok {
		return true
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return true
	}
	year, err := strconv.Atoi(yy)
	if err != nil || len(yy) != 2 {
		return true
	}
	endOfMonth := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, now.Location())
	return !now.Before(endOfMonth)
}

// Receipt records an approved charge.
type Receipt struct {
	TransactionID string
	Amount        float64
	Last4         string
	ApprovedAt    time.Time
}

// Processor authorizes charges.
type Processor struct {
	// Delay is how long Charge waits before answering. Zero answers at once.
	Delay  time.Duration
	Logger *slog.Logger

	now func() time.Time
}

// NewProcessor creates a processor with the given delay. A negative delay
// selects DefaultDelay.
func NewProcessor(delay time.Duration, logger *slog.Logger) *Processor {
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slogx.Discard()
	}
	return &Processor{Delay: delay, Logger: logger, now: time.Now}
}

// Charge authorizes amount against card. Cards ending in an even digit are
// approved and cards ending in an odd digit are declined. The wait honors ctx.
func (p *Processor) Charge(ctx context.Context, card Card, amount float64) (*Receipt, error) {
	if err := card.Validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	now := p.now()
	if card.expired(now) {
		return nil, ErrCardExpired
	}

	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("payment interrupted: %w", ctx.Err())
		}
	}

	last := card.Number[len(card.Number)-1] - '0'
	if last%2 != 0 {
		p.Logger.InfoContext(ctx, "payment declined", "card_last4", card.Last4(), "amount", amount)
		return nil, ErrDeclined
	}

	receipt := &Receipt{
		TransactionID: ulid.Make().String(),
		Amount:        amount,
		Last4:         card.Last4(),
		ApprovedAt:    p.now(),
	}
	p.Logger.InfoContext(ctx, "payment approved",
		"transaction_id", receipt.TransactionID,
		"card_last4", receipt.Last4,
		"amount", amount,
	)
	return receipt, nil
}

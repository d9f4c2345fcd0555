package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Clock returns the current time. Services take it so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Validator checks command structs and reports failures as validation errors.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("codealphabet", func(fl validator.FieldLevel) bool {
		return ValidCodeAlphabet(fl.Field().String())
	})
	return &Validator{v: v}
}

func (v *Validator) Struct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Wrap(domain.KindValidation, fmt.Sprintf("invalid %s: %s", fe.Field(), describeTag(fe)), err)
	}
	return domain.Wrap(domain.KindValidation, "invalid input", err)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "len":
		return "must have exactly " + fe.Param() + " element(s)"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "codealphabet":
		return "contains characters outside the code alphabet"
	default:
		return "failed " + fe.Tag()
	}
}

// base holds what every engine service shares.
type base struct {
	validate *Validator
	events   domain.EventPublisher
	notifier domain.Notifier
	clock    Clock
	logger   *zerolog.Logger
}

func newBase(events domain.EventPublisher, notifier domain.Notifier, clock Clock, logger *zerolog.Logger, component string) base {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", component).Logger()
	return base{
		validate: NewValidator(),
		events:   events,
		notifier: notifier,
		clock:    clock,
		logger:   &l,
	}
}

// observe records the outcome of op and passes err through.
func (b *base) observe(op string, err error) error {
	result := "ok"
	if err != nil {
		result = domain.KindOf(err).String()
		if domain.KindOf(err) == domain.KindUnknown {
			b.logger.Error().Err(err).Str("op", op).Msg("operation failed")
		}
	}
	metrics.ObserveTransition(op, result)
	return err
}

func (b *base) publish(eventType string, payload interface{}) {
	if b.events == nil {
		return
	}
	if err := b.events.PublishJSON(eventType, payload); err != nil {
		b.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// notify hands a system message to the notifier. It runs after commit, so the
// caller's cancellation does not apply. Failures are logged only.
func (b *base) notify(ctx context.Context, exchangeID int64, text string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(context.WithoutCancel(ctx), exchangeID, text); err != nil {
		b.logger.Warn().Err(err).Int64("exchange_id", exchangeID).Msg("notify error")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clean(s string, n int) string {
	return truncate(strings.TrimSpace(s), n)
}

const meetingTimeLayout = "2006-01-02 15:04 MST"

func describeMeeting(place string, at time.Time) string {
	return fmt.Sprintf("%s - %s", place, at.UTC().Format(meetingTimeLayout))
}

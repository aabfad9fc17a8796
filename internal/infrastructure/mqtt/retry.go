package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/equipctl/internal/infrastructure/config"
)

// RawPublisher is the single-shot publish primitive; *Client implements it.
type RawPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// RetryPublisher retries failed publishes with exponential backoff.
//
// Invalid topics, QoS values and oversize payloads are not retried. Every
// other failure (not connected, broker timeout) is retried until MaxTries
// or MaxElapsed is reached, or ctx is done.
type RetryPublisher struct {
	raw    RawPublisher
	qos    byte
	policy config.MQTTPublishRetryConfig
	logger Logger
}

// NewRetryPublisher wraps raw. qos is used for every publish.
func NewRetryPublisher(raw RawPublisher, qos byte, policy config.MQTTPublishRetryConfig) *RetryPublisher {
	return &RetryPublisher{raw: raw, qos: qos, policy: policy}
}

// SetLogger enables a warning per failed attempt.
func (p *RetryPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Publish sends a non-retained message, retrying transient failures.
// The returned error wraps ErrPublishFailed or ErrNotConnected.
func (p *RetryPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := p.raw.Publish(topic, payload, p.qos, false)
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	notify := func(err error, next time.Duration) {
		if p.logger != nil {
			p.logger.Warn("mqtt publish failed, retrying",
				"topic", topic,
				"attempt", attempt,
				"retry_in", next.String(),
				"error", err,
			)
		}
	}

	_, err := backoff.Retry(ctx, operation, p.retryOptions(notify)...)
	return err
}

func (p *RetryPublisher) retryOptions(notify backoff.Notify) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if p.policy.InitialInterval > 0 {
		b.InitialInterval = time.Duration(p.policy.InitialInterval) * time.Millisecond
	}
	if p.policy.MaxInterval > 0 {
		b.MaxInterval = time.Duration(p.policy.MaxInterval) * time.Millisecond
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(notify),
	}
	if p.policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(time.Duration(p.policy.MaxElapsed)*time.Millisecond))
	}
	if p.policy.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.policy.MaxTries))
	}
	return opts
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidTopic) ||
		errors.Is(err, ErrInvalidQoS) ||
		errors.Is(err, ErrPayloadTooLarge)
}

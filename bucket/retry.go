package bucket

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retries failed operations of the wrapped bucket with exponential
// backoff. Missing objects are not retried.
type Retrying struct {
	Bucket Bucket

	// Retries after the first attempt.
	MaxRetries uint64

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Called before each retry.
	OnRetry func(op string, key string, err error, wait time.Duration)
}

func NewRetrying(b Bucket, maxRetries uint64) *Retrying {
	return &Retrying{
		Bucket:          b,
		MaxRetries:      maxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.MaxRetries), ctx)
}

func (r *Retrying) do(ctx context.Context, op string, key string, f func() error) error {
	return backoff.RetryNotify(
		func() error {
			err := f()
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		},
		r.policy(ctx),
		func(err error, wait time.Duration) {
			if r.OnRetry != nil {
				r.OnRetry(op, key, err, wait)
			}
		},
	)
}

func (r *Retrying) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "get", key, func() error {
		var err error
		data, err = r.Bucket.Get(ctx, key)
		return err
	})
	return data, err
}

func (r *Retrying) Put(ctx context.Context, key string, data []byte) error {
	return r.do(ctx, "put", key, func() error {
		return r.Bucket.Put(ctx, key, data)
	})
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.do(ctx, "list", prefix, func() error {
		var err error
		keys, err = r.Bucket.List(ctx, prefix)
		return err
	})
	return keys, err
}

package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FallbackAdapter attempts a primary adapter first and falls back on error.
// Once the primary has forwarded a delta the fallback is never tried, since
// the caller has already shown part of the primary's answer.
type FallbackAdapter struct {
	primary  Adapter
	fallback Adapter

	// FirstDeltaTimeout abandons a primary that has produced nothing within
	// the window. Zero disables it.
	FirstDeltaTimeout time.Duration
}

func NewFallbackAdapter(primary Adapter, fallback Adapter) *FallbackAdapter {
	return &FallbackAdapter{
		primary:  primary,
		fallback: fallback,
	}
}

// Primary returns the preferred adapter used before fallback.
func (a *FallbackAdapter) Primary() Adapter {
	if a == nil {
		return nil
	}
	return a.primary
}

// Secondary returns the fallback adapter.
func (a *FallbackAdapter) Secondary() Adapter {
	if a == nil {
		return nil
	}
	return a.fallback
}

var errFirstDeltaTimeout = errors.New("primary adapter produced no output before the first-delta timeout")

func (a *FallbackAdapter) StreamResponse(
	ctx context.Context,
	req MessageRequest,
	onDelta DeltaHandler,
) (MessageResponse, error) {
	if a == nil || a.primary == nil {
		if a != nil && a.fallback != nil {
			return a.fallback.StreamResponse(ctx, req, onDelta)
		}
		return MessageResponse{}, fmt.Errorf("fallback adapter misconfigured")
	}

	resp, delivered, err := a.runPrimary(ctx, req, onDelta)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return MessageResponse{}, err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return MessageResponse{}, err
	}
	if delivered || a.fallback == nil {
		return resp, err
	}

	fallbackResp, fallbackErr := a.fallback.StreamResponse(ctx, req, onDelta)
	if fallbackErr != nil {
		return fallbackResp, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

func (a *FallbackAdapter) runPrimary(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, bool, error) {
	primaryCtx, cancelPrimary := context.WithCancel(ctx)
	defer cancelPrimary()

	var (
		delivered      atomic.Bool
		accept         atomic.Bool
		firstDeltaOnce sync.Once
	)
	accept.Store(true)
	firstDelta := make(chan struct{})

	type result struct {
		resp MessageResponse
		err  error
	}
	done := make(chan result, 1)

	go func() {
		resp, err := a.primary.StreamResponse(primaryCtx, req, func(delta string) error {
			if !accept.Load() {
				return context.Canceled
			}
			if strings.TrimSpace(delta) != "" {
				firstDeltaOnce.Do(func() { close(firstDelta) })
			}
			delivered.Store(true)
			if onDelta == nil {
				return nil
			}
			return onDelta(delta)
		})
		done <- result{resp: resp, err: err}
	}()

	if a.fallback == nil || a.FirstDeltaTimeout <= 0 {
		r := <-done
		return r.resp, delivered.Load(), r.err
	}

	timer := time.NewTimer(a.FirstDeltaTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.resp, delivered.Load(), r.err
	case <-firstDelta:
		r := <-done
		return r.resp, true, r.err
	case <-timer.C:
		accept.Store(false)
		cancelPrimary()
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
		}
		// Whitespace-only deltas may have reached the caller before the cut.
		return MessageResponse{}, delivered.Load(), errFirstDeltaTimeout
	}
}

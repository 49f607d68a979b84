// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/trackersync/internal/clock"
	"github.com/tomtom215/trackersync/internal/metrics"
)

// RateLimiter is the request budget shared by every caller of one HTTPClient.
// Reservations are taken under a mutex; the wait itself happens outside it.
type RateLimiter struct {
	mu         sync.Mutex
	clock      clock.Clock
	limiter    *rate.Limiter
	burstEvery int
	burstPause time.Duration
	count      int64
	notBefore  time.Time
}

// NewRateLimiter builds a limiter allowing requestsPerSecond requests with no
// bursting. Every burstEvery requests an extra burstPause is added before the
// next request. requestsPerSecond <= 0 disables spacing.
func NewRateLimiter(requestsPerSecond float64, burstEvery int, burstPause time.Duration, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	rl := &RateLimiter{
		clock:      clk,
		burstEvery: burstEvery,
		burstPause: burstPause,
	}
	if requestsPerSecond > 0 {
		rl.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return rl
}

// Wait blocks until the next request may be sent. When ctx ends first the
// reservation is returned, so an unsent request neither holds a token nor
// counts toward the burst pause.
func (r *RateLimiter) Wait(ctx context.Context) error {
	res := r.reserve()
	if res.delay <= 0 {
		return nil
	}
	metrics.RecordRateLimitWait(res.delay)
	if err := r.clock.Sleep(ctx, res.delay); err != nil {
		r.cancel(res)
		return err
	}
	return nil
}

// Requests returns how many requests have been admitted.
func (r *RateLimiter) Requests() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type reservation struct {
	delay     time.Duration
	token     *rate.Reservation
	pausedAt  time.Time // notBefore set by this reservation, zero if none
	prevPause time.Time
}

func (r *RateLimiter) reserve() reservation {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	act := now
	if r.notBefore.After(act) {
		act = r.notBefore
	}
	res := reservation{prevPause: r.notBefore}
	// Reservations are taken at the send time, after any pending pause.
	if r.limiter != nil {
		res.token = r.limiter.ReserveN(act, 1)
		act = act.Add(res.token.DelayFrom(act))
	}

	r.count++
	if r.burstEvery > 0 && r.burstPause > 0 && r.count%int64(r.burstEvery) == 0 {
		r.notBefore = act.Add(r.burstPause)
		res.pausedAt = r.notBefore
	}
	res.delay = act.Sub(now)
	return res
}

func (r *RateLimiter) cancel(res reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.token != nil {
		res.token.CancelAt(r.clock.Now())
	}
	r.count--
	if !res.pausedAt.IsZero() && r.notBefore.Equal(res.pausedAt) {
		r.notBefore = res.prevPause
	}
}

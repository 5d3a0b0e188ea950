/*
DESCRIPTION
  quota.go provides a rate limiter for Data API calls using a token
  bucket algorithm, with its state persisted in the datastore.

LICENSE
  Copyright (C) 2025 the YouTube Live Chat DB System authors.

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ando1912/YoutubeLiveChatDBSystem/datastore"
	"github.com/ando1912/YoutubeLiveChatDBSystem/model"
)

// RateLimiter gates Data API calls.
type RateLimiter interface {
	RequestOK() bool
}

// tokenBucketScope prefixes the limiter's persisted variable name.
const tokenBucketScope = "token_bucket"

// TokenBucketLimiter is a rate limiter using a token bucket algorithm.
// Its state is persisted as a model.Variable, so refill accounting
// survives restarts and the daily API quota is not reset by a
// redeploy. It is identified by a unique ID, one per API key.
type TokenBucketLimiter struct {
	ID             string
	Tokens         float64
	MaxTokens      float64
	RefillRate     float64 // Tokens per hour.
	LastRefillTime time.Time

	store  datastore.Store
	logger zerolog.Logger
	mu     sync.Mutex
}

// tokenBucketState is the persisted subset of TokenBucketLimiter.
type tokenBucketState struct {
	ID             string
	Tokens         float64
	MaxTokens      float64
	RefillRate     float64
	LastRefillTime time.Time
}

// GetTokenBucketLimiter gets a token bucket limiter from the store,
// creating it with the given maxTokens and refillRate (tokens per
// hour) if it does not exist.
func GetTokenBucketLimiter(ctx context.Context, store datastore.Store, id string, maxTokens, refillRate float64, logger zerolog.Logger) (*TokenBucketLimiter, error) {
	l := &TokenBucketLimiter{store: store, logger: logger}

	v, err := model.GetVariable(ctx, store, tokenBucketScope+"."+id)
	switch {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		logger.Info().Str("limiter", id).Msg("token bucket limiter not found, creating new one")
		l.ID = id
		l.Tokens = maxTokens
		l.MaxTokens = maxTokens
		l.RefillRate = refillRate
		l.LastRefillTime = time.Now()
		err = l.persist(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not store token bucket limiter: %w", err)
		}
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("could not get token bucket limiter: %w", err)
	}

	var state tokenBucketState
	err = json.Unmarshal([]byte(v.Value), &state)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal token bucket limiter: %w", err)
	}
	l.ID = state.ID
	l.Tokens = state.Tokens
	l.MaxTokens = state.MaxTokens
	l.RefillRate = state.RefillRate
	l.LastRefillTime = state.LastRefillTime
	return l, nil
}

// RequestOK returns true if a request is allowed (we have enough
// tokens), and false otherwise.
func (l *TokenBucketLimiter) RequestOK() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.LastRefillTime)
	toAdd := elapsed.Hours() * l.RefillRate
	l.Tokens = math.Min(l.MaxTokens, l.Tokens+toAdd)
	l.LastRefillTime = time.Now()

	ok := false
	if l.Tokens >= 1 {
		l.Tokens--
		ok = true
	}
	err := l.persist(context.Background())
	if err != nil {
		l.logger.Error().Err(err).Str("limiter", l.ID).Msg("could not store token bucket limiter")
		ok = false
	}
	return ok
}

// persist writes the limiter state to the store.
func (l *TokenBucketLimiter) persist(ctx context.Context) error {
	state := tokenBucketState{
		ID:             l.ID,
		Tokens:         l.Tokens,
		MaxTokens:      l.MaxTokens,
		RefillRate:     l.RefillRate,
		LastRefillTime: l.LastRefillTime,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return model.PutVariable(ctx, l.store, tokenBucketScope+"."+l.ID, string(data))
}

// UnlimitedLimiter is a RateLimiter that always allows requests, for
// tests and standalone operation against fakes.
type UnlimitedLimiter struct{}

// RequestOK always returns true.
func (UnlimitedLimiter) RequestOK() bool {
	return true
}

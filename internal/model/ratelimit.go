package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a process-local tokens-per-minute
// budget, enforced before every Complete/Stream call. Unlike the teacher's
// cluster-aware adaptive limiter, this is a fixed-budget limiter: this
// repository has no replicated-map dependency to coordinate a shared
// budget across processes, so the adaptive/backoff half of the teacher's
// design is dropped and only the token-bucket wait survives (see
// DESIGN.md's dropped-dependency note on goa.design/pulse).
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps next with a limiter admitting tokensPerMinute
// tokens, estimated per request by estimateTokens.
func NewRateLimitedClient(next Client, tokensPerMinute int) *RateLimitedClient {
	if tokensPerMinute <= 0 {
		tokensPerMinute = 60000
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60.0), tokensPerMinute),
	}
}

func (c *RateLimitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, req)
}

func (c *RateLimitedClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	if err := c.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return nil, err
	}
	return c.next.Stream(ctx, req)
}

// estimateTokens is a cheap character-count heuristic, matching the
// teacher's own approximation (~1 token per 3 characters, plus a fixed
// overhead buffer for system framing).
func estimateTokens(req *Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content) + len(m.Reasoning)
	}
	tokens := chars/3 + 500
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

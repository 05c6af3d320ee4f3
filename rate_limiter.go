package shelfauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/shelfauth/internal/logging"
	"github.com/MrEthical07/shelfauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	scopeSignIn             = "sign-in"
	scopeSignUp             = "sign-up"
	scopeOAuth              = "oauth"
	scopeVerifyEmail        = "verify-email"
	scopeResendVerification = "resend-verification"
)

type redisRateLimiter struct {
	limiter *rate.Limiter
	metrics *Metrics
	logger  logging.Logger
}

func newRedisRateLimiter(client redis.UniversalClient, cfg RateLimitConfig, metrics *Metrics, logger logging.Logger) *redisRateLimiter {
	policy := rate.FailLocal
	switch cfg.OnBackendFailure {
	case RateLimitFailClosed:
		policy = rate.FailClosed
	case RateLimitFailOpen:
		policy = rate.FailOpen
	}

	return &redisRateLimiter{
		limiter: rate.New(client, rate.Config{
			Prefix:       cfg.RedisPrefix,
			Limit:        cfg.Limit,
			Window:       cfg.Window,
			OnFailure:    policy,
			MaxLocalKeys: cfg.MaxLocalKeys,
		}),
		metrics: metrics,
		logger:  logger,
	}
}

func (l *redisRateLimiter) Limit(ctx context.Context, scope, key string) (RateLimitResult, error) {
	res, err := l.limiter.Limit(ctx, scope, key)
	if res.Degraded {
		l.metrics.Inc(MetricRateLimiterDegraded)
		l.logger.Warn(ctx, "rate limiter backend unavailable, degraded decision", "scope", scope, "allowed", res.Allowed)
	}
	if err != nil {
		if errors.Is(err, rate.ErrRedisUnavailable) {
			return RateLimitResult{ResetAt: res.ResetAt}, errors.Join(ErrRateLimiterUnavailable, err)
		}
		return RateLimitResult{}, err
	}

	return RateLimitResult{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}, nil
}

// throttle consults the limiter and returns the throttling outcome when the call
// must stop. A limiter error also stops the call.
func (e *Engine) throttle(ctx context.Context, scope, key string) (Outcome, bool) {
	res, err := e.limiter.Limit(ctx, scope, key)
	if err != nil {
		e.logger.Error(ctx, "rate limiter failed", "scope", scope, "error", err)
	}
	if err != nil || !res.Allowed {
		e.metrics.Inc(MetricRateLimited)
		out := failure(KeyRateLimited)
		out.RedirectTo = e.config.Routes.TooFast
		if !res.ResetAt.IsZero() {
			out.Data = map[string]any{"resetAt": res.ResetAt}
		}
		return out, true
	}
	return Outcome{}, false
}

// Command shelfauth-loadtest measures the Redis-backed hot paths: session
// lookup, sliding renewal and the fixed-window rate limiter.
//
// Without -redis-addr or SHELFAUTH_REDIS_ADDR it runs against an embedded
// miniredis, which is useful for smoke runs but says little about latency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/shelfauth/internal/rate"
	"github.com/MrEthical07/shelfauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type options struct {
	sessions    int
	concurrency int
	ops         int
	clients     int
	redisAddr   string
	prefix      string
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("shelfauth-loadtest", flag.ContinueOnError)
	fs.IntVar(&o.sessions, "sessions", 100000, "sessions seeded before the lookup phase")
	fs.IntVar(&o.concurrency, "concurrency", 256, "concurrent workers per phase")
	fs.IntVar(&o.ops, "ops", 200000, "operations per phase")
	fs.IntVar(&o.clients, "clients", 5000, "distinct client IPs in the limiter phase")
	fs.StringVar(&o.redisAddr, "redis-addr", os.Getenv("SHELFAUTH_REDIS_ADDR"), "redis address, embedded miniredis when empty")
	fs.StringVar(&o.prefix, "prefix", "as", "session key prefix")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 || o.clients <= 0 {
		return o, errors.New("sessions, concurrency, ops and clients must be positive")
	}
	return o, nil
}

func main() {
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(context.Background(), o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

// connect returns a client for addr, or for a fresh miniredis when addr is empty.
func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, store *session.RedisStore, n int) ([]string, error) {
	ids := make([]string, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		token, err := session.GenerateToken()
		if err != nil {
			return nil, err
		}
		sess := &session.Session{
			ID:        session.HashToken(token),
			UserID:    fmt.Sprintf("user-%d", i%1000),
			IssuedAt:  now,
			ExpiresAt: now.Add(session.DefaultLifetime),
		}
		if err := store.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("seed session %d: %w", i, err)
		}
		ids = append(ids, sess.ID)
	}
	return ids, nil
}

func run(ctx context.Context, o options, out io.Writer) error {
	client, closeClient, err := connect(o.redisAddr)
	if err != nil {
		return err
	}
	defer closeClient()

	store := session.NewRedisStore(client, o.prefix)
	began := time.Now()
	ids, err := seed(ctx, store, o.sessions)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %d sessions in %s\n", len(ids), time.Since(began).Round(time.Millisecond))

	pick := func(r *rand.Rand) string { return ids[r.Intn(len(ids))] }
	limiter := rate.New(client, rate.Config{Prefix: "rl", Limit: 5, Window: time.Minute})
	var denied atomic.Int64

	phases := []struct {
		name string
		fn   func(r *rand.Rand, i int) error
	}{
		{"lookup", func(r *rand.Rand, _ int) error {
			_, err := store.GetSession(ctx, pick(r))
			return err
		}},
		{"renew", func(r *rand.Rand, i int) error {
			expiry := time.Now().Add(session.DefaultLifetime + time.Duration(i)*time.Millisecond)
			return store.UpdateSessionExpiry(ctx, pick(r), expiry)
		}},
		{"limit", func(r *rand.Rand, _ int) error {
			res, err := limiter.Limit(ctx, "sign-in", fmt.Sprintf("198.51.100.%d", r.Intn(o.clients)))
			if err == nil && !res.Allowed {
				denied.Add(1)
			}
			return err
		}},
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "phase\tops\tfailures\telapsed\tops/s\tp50\tp95\tp99")
	for _, p := range phases {
		s := runPhase(o.ops, o.concurrency, p.fn)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\n", p.name, s.ops, s.failures,
			s.elapsed.Round(time.Millisecond), s.throughput(),
			s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "limiter denied %d of %d\n", denied.Load(), o.ops)
	return nil
}

type phaseStats struct {
	ops           int
	failures      int64
	elapsed       time.Duration
	p50, p95, p99 time.Duration
}

func (s phaseStats) throughput() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ops) / s.elapsed.Seconds()
}

// runPhase hands out call indexes 0..ops-1 to concurrency workers. Each worker
// keeps its own samples; they are merged once all workers are done.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, concurrency)

	began := time.Now()
	for w := range perWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(began.UnixNano() + int64(w)))
			for {
				i := int(next.Add(1) - 1)
				if i >= ops {
					return
				}
				start := time.Now()
				if err := fn(r, i); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(start))
			}
		}()
	}
	wg.Wait()

	samples := slices.Concat(perWorker...)
	slices.Sort(samples)
	return phaseStats{
		ops:      len(samples),
		failures: failures.Load(),
		elapsed:  time.Since(began),
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

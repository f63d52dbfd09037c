package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/r2s/authgate"
)

const loadtestKey = "loadtest-signing-key-loadtest-signing-key-loadtest-signing-key-0"

func main() {
	var (
		users       = flag.Int("users", 1000, "number of accounts to log in as")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (login + introspect)")
		storm       = flag.Int("storm", 500, "concurrent wrong-password attempts against one username")
		maxFailures = flag.Int("max-failures", 5, "failed logins before a block")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *storm <= 0 || *maxFailures <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops, storm and max-failures must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authgate.DefaultConfig()
	cfg.Token.SigningKey = []byte(loadtestKey)
	cfg.RateLimit.Login.MaxFailures = *maxFailures
	// Full identities, so load users do not share budgets.
	cfg.RateLimit.IdentitySuffixLength = 0
	cfg.RateLimit.Introspect.MaxAttempts = 1 << 30
	cfg.Timeouts.Store = 5 * time.Second

	gate, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialValidator(loadValidator()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build gate: %v\n", err)
		os.Exit(1)
	}
	defer gate.Close()

	names := make([]string, *users)
	for i := range names {
		names[i] = fmt.Sprintf("load-user-%06d", i)
	}

	stormResult := runStormPhase(ctx, gate, *storm, *concurrency)

	loginStats, tokens := runLoginPhase(ctx, gate, names, *ops, *concurrency)
	introspectStats := runIntrospectPhase(ctx, gate, tokens, *ops, *concurrency)

	fmt.Println("---- results ----")
	fmt.Printf("storm: attempts=%d invalid=%d blocked=%d unavailable=%d stored_count=%d\n",
		*storm, stormResult.invalid, stormResult.blocked, stormResult.unavailable, stormResult.stored)
	printStats("login", loginStats)
	printStats("introspect", introspectStats)

	if stormResult.stored != stormResult.invalid {
		fmt.Fprintf(os.Stderr, "lost increments: %d failures answered, %d counted\n", stormResult.invalid, stormResult.stored)
		os.Exit(1)
	}
	if stormResult.invalid < int64(*maxFailures) {
		fmt.Fprintf(os.Stderr, "block installed early: only %d failures answered\n", stormResult.invalid)
		os.Exit(1)
	}
}

// loadValidator accepts any load-user with password "load-password" without
// hashing, so the numbers measure the gate and the store.
func loadValidator() authgate.CredentialValidator {
	return authgate.CredentialValidatorFunc(func(_ context.Context, username, password string) (authgate.Principal, error) {
		if password != "load-password" {
			return authgate.Principal{}, authgate.ErrInvalidCredentials
		}
		return authgate.Principal{ID: username, Username: username, Roles: []string{"USER"}}, nil
	})
}

type stormResult struct {
	invalid     int64
	blocked     int64
	unavailable int64
	stored      int64
}

// runStormPhase fires wrong passwords at one username concurrently. Every
// answered failure must show up in the stored count.
func runStormPhase(ctx context.Context, gate *authgate.Gate, attempts, concurrency int) stormResult {
	const victim = "storm-victim"

	var (
		wg     sync.WaitGroup
		cursor int64
		res    stormResult
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if int(atomic.AddInt64(&cursor, 1)) > attempts {
					return
				}
				_, err := gate.Login(ctx, victim, "wrong-password")
				switch {
				case errors.Is(err, authgate.ErrInvalidCredentials):
					atomic.AddInt64(&res.invalid, 1)
				case errors.Is(err, authgate.ErrTooManyAttempts):
					atomic.AddInt64(&res.blocked, 1)
				default:
					atomic.AddInt64(&res.unavailable, 1)
				}
			}
		}()
	}
	wg.Wait()

	stored, err := gate.LoginAttempts(ctx, victim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read attempts: %v\n", err)
		os.Exit(1)
	}
	res.stored = stored
	return res
}

func runLoginPhase(ctx context.Context, gate *authgate.Gate, names []string, ops, concurrency int) (phaseStats, []string) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		tokens    = make([]string, len(names))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := i
				if idx >= len(names) {
					idx = r.Intn(len(names))
				}
				t0 := time.Now()
				token, err := gate.Login(ctx, names[idx], "load-password")
				d := time.Since(t0)

				mu.Lock()
				if err != nil {
					failures++
				} else {
					tokens[idx] = token
				}
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	issued := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			issued = append(issued, t)
		}
	}
	return computeStats(total, latencies, failures), issued
}

func runIntrospectPhase(ctx context.Context, gate *authgate.Gate, tokens []string, ops, concurrency int) phaseStats {
	if len(tokens) == 0 {
		return phaseStats{}
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := gate.Introspect(ctx, tokens[r.Intn(len(tokens))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

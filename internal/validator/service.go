package validator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/pland/internal/validator"

// Config configures the validation service.
type Config struct {
	// CacheTTL is how long results are served from cache (default: 5s).
	CacheTTL time.Duration

	// Timeout is the hard bound on a single probe (default: 5s).
	Timeout time.Duration

	// ProbeRate limits probe executions per second (default: 50).
	ProbeRate rate.Limit

	// ProbeBurst is the limiter burst size (default: 20).
	ProbeBurst int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheTTL:   5 * time.Second,
		Timeout:    5 * time.Second,
		ProbeRate:  50,
		ProbeBurst: 20,
	}
}

type cacheEntry struct {
	result  *ValidationResult
	expires time.Time
}

// Service runs cached, timeout-bounded validation checks.
type Service struct {
	config  *Config
	logger  *zap.Logger
	limiter *rate.Limiter

	httpClient *http.Client

	meter        metric.Meter
	checkCounter metric.Int64Counter
	hitCounter   metric.Int64Counter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewService creates a validation service.
func NewService(cfg *Config, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ProbeRate <= 0 {
		cfg.ProbeRate = 50
	}
	if cfg.ProbeBurst <= 0 {
		cfg.ProbeBurst = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:     cfg,
		logger:     logger,
		limiter:    rate.NewLimiter(cfg.ProbeRate, cfg.ProbeBurst),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		meter:      otel.Meter(instrumentationName),
		cache:      make(map[string]cacheEntry),
	}
	s.initMetrics()
	return s
}

// initMetrics initializes OpenTelemetry metrics.
func (s *Service) initMetrics() {
	var err error

	s.checkCounter, err = s.meter.Int64Counter(
		"pland.validator.checks_total",
		metric.WithDescription("Total number of validation checks executed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		s.logger.Warn("failed to create check counter", zap.Error(err))
	}

	s.hitCounter, err = s.meter.Int64Counter(
		"pland.validator.cache_hits_total",
		metric.WithDescription("Total number of validation cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		s.logger.Warn("failed to create cache hit counter", zap.Error(err))
	}
}

// run executes a probe with caching, rate limiting, and the hard timeout.
// A cached result is returned as the same object, timestamp included.
func (s *Service) run(ctx context.Context, key string, probe func(ctx context.Context) *ValidationResult) *ValidationResult {
	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expires) {
		s.mu.Unlock()
		if s.hitCounter != nil {
			s.hitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("check", checkKind(key))))
		}
		return entry.result
	}
	s.mu.Unlock()

	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return newResult(false, "", start, fmt.Sprintf("probe rate limit: %v", err))
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	done := make(chan *ValidationResult, 1)
	go func() {
		done <- probe(probeCtx)
	}()

	var result *ValidationResult
	select {
	case result = <-done:
	case <-probeCtx.Done():
		result = newResult(false, "", start,
			fmt.Sprintf("validation timeout after %s", s.config.Timeout))
	}

	if s.checkCounter != nil {
		s.checkCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("check", checkKind(key)),
			attribute.Bool("passed", result.Passed),
		))
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{result: result, expires: time.Now().Add(s.config.CacheTTL)}
	s.mu.Unlock()
	return result
}

// ValidateFileExists checks that a file exists and is readable.
func (s *Service) ValidateFileExists(ctx context.Context, path string) *ValidationResult {
	return s.run(ctx, "file|"+path, func(ctx context.Context) *ValidationResult {
		start := time.Now()
		f, err := os.Open(path)
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("file not readable: %v", err))
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("failed to stat file: %v", err))
		}
		return newResult(true, fmt.Sprintf("file %s exists (%d bytes)", path, info.Size()), start, "")
	})
}

// ValidatePortReachable checks that a TCP port accepts connections.
func (s *Service) ValidatePortReachable(ctx context.Context, host string, port int) *ValidationResult {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return s.run(ctx, "port|"+addr, func(ctx context.Context) *ValidationResult {
		start := time.Now()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("port unreachable: %v", err))
		}
		conn.Close()
		return newResult(true, fmt.Sprintf("port %s accepts connections", addr), start, "")
	})
}

// ValidateHTTPEndpoint checks that an HTTP endpoint answers with the
// expected status code. expectStatus 0 accepts any status below 500.
func (s *Service) ValidateHTTPEndpoint(ctx context.Context, url string, expectStatus int) *ValidationResult {
	key := fmt.Sprintf("http|%s|%d", url, expectStatus)
	return s.run(ctx, key, func(ctx context.Context) *ValidationResult {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("invalid url: %v", err))
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("endpoint unreachable: %v", err))
		}
		defer resp.Body.Close()

		ok := resp.StatusCode == expectStatus
		if expectStatus == 0 {
			ok = resp.StatusCode < 500
		}
		if !ok {
			return newResult(false, "", start,
				fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
		}
		return newResult(true, fmt.Sprintf("endpoint %s returned %d", url, resp.StatusCode), start, "")
	})
}

// ValidateProcessRunning checks that an OS process with the given PID
// exists.
func (s *Service) ValidateProcessRunning(ctx context.Context, pid int) *ValidationResult {
	return s.run(ctx, fmt.Sprintf("process|%d", pid), func(ctx context.Context) *ValidationResult {
		start := time.Now()
		proc, err := os.FindProcess(pid)
		if err != nil {
			return newResult(false, "", start, fmt.Sprintf("process %d not found: %v", pid, err))
		}
		// Signal 0 probes existence without delivering a signal.
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return newResult(false, "", start, fmt.Sprintf("process %d not running: %v", pid, err))
		}
		return newResult(true, fmt.Sprintf("process %d is running", pid), start, "")
	})
}

// ValidateCustom runs a caller-supplied predicate. The name keys the cache,
// so distinct predicates need distinct names.
func (s *Service) ValidateCustom(ctx context.Context, name string, predicate func(ctx context.Context) (bool, string, error)) *ValidationResult {
	return s.run(ctx, "custom|"+name, func(ctx context.Context) *ValidationResult {
		start := time.Now()
		ok, evidence, err := predicate(ctx)
		if err != nil {
			return newResult(false, evidence, start, fmt.Sprintf("predicate %s failed: %v", name, err))
		}
		if !ok {
			return newResult(false, evidence, start, fmt.Sprintf("predicate %s returned false", name))
		}
		return newResult(true, evidence, start, "")
	})
}

// ValidateParallel runs independent checks concurrently and returns their
// results in input order.
func (s *Service) ValidateParallel(ctx context.Context, checks []Check) []*ValidationResult {
	results := make([]*ValidationResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = check()
		}(i, check)
	}
	wg.Wait()
	return results
}

// ClearCache drops all cached results.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

// checkKind extracts the kind prefix from a cache key for metric labels.
func checkKind(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}

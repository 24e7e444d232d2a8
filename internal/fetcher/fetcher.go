package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/otxsubs/internal/passive"
	"github.com/bl4ck0w1/otxsubs/internal/report"
	"github.com/bl4ck0w1/otxsubs/pkg/models"
	"github.com/bl4ck0w1/otxsubs/pkg/utils"
)

type Querier interface {
	Query(ctx context.Context, domain string) (*passive.Response, error)
}

type Store interface {
	SaveSubdomains(domain string, hosts []string) (string, error)
}

type LiveFilter interface {
	FilterLive(ctx context.Context, hosts []string) ([]string, error)
}

// Fetcher runs the query, filter and persist steps for one domain at a time.
// Failures never escape Fetch; they are returned in the result and reported.
type Fetcher struct {
	client   Querier
	store    Store
	reporter report.Reporter
	policy   RetryPolicy
	resolver LiveFilter
	metrics  *utils.FetchMetrics
	logger   *logrus.Logger
	sleep    func(context.Context, time.Duration) error
}

type Option func(*Fetcher)

func WithResolver(r LiveFilter) Option {
	return func(f *Fetcher) { f.resolver = r }
}

func WithMetrics(m *utils.FetchMetrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithLogger(l *logrus.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithSleep replaces the wait used between rate-limited attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.sleep = fn
		}
	}
}

func New(client Querier, store Store, reporter report.Reporter, policy RetryPolicy, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   client,
		store:    store,
		reporter: reporter,
		policy:   policy,
		logger:   logrus.StandardLogger(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.reporter == nil {
		f.reporter = report.NewLogReporter(f.logger)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, domain string) (res models.FetchResult) {
	start := time.Now()
	res.Domain = domain
	defer func() {
		res.Duration = time.Since(start)
		f.observe(res)
	}()

	matcher, err := passive.NewMatcher(domain)
	if err != nil {
		return f.fail(res, models.StatusHTTPError, err)
	}

	resp, attempts, err := f.query(ctx, domain)
	res.Attempts = attempts
	if err != nil {
		return f.fail(res, classify(ctx, err), err)
	}

	set := matcher.Collect(resp.PassiveDNS)
	f.logger.WithFields(logrus.Fields{
		"domain":  domain,
		"records": len(resp.PassiveDNS),
		"matched": set.Len(),
	}).Debug("passive dns records filtered")

	if f.resolver != nil && set.Len() > 0 {
		live, err := f.resolver.FilterLive(ctx, set.Sorted())
		switch {
		case err == nil:
			f.logger.WithFields(logrus.Fields{"domain": domain, "live": len(live), "dropped": set.Len() - len(live)}).
				Debug("resolution check done")
			set.Retain(live)
		case ctx.Err() != nil:
			return f.fail(res, models.StatusCancelled, err)
		default:
			f.logger.WithField("domain", domain).Warnf("resolution check failed, keeping all matches: %v", err)
		}
	}

	hosts := set.Sorted()
	if len(hosts) == 0 {
		res.Status = models.StatusNoMatches
		f.reporter.NoMatches(domain)
		return res
	}

	path, err := f.store.SaveSubdomains(domain, hosts)
	if err != nil {
		return f.fail(res, models.StatusWriteError, err)
	}

	res.Status = models.StatusSaved
	res.Count = len(hosts)
	res.Subdomains = hosts
	res.OutputFile = path
	f.reporter.Saved(res)
	return res
}

// query repeats the request while OTX answers 429 and the policy allows it.
func (f *Fetcher) query(ctx context.Context, domain string) (*passive.Response, int, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.client.Query(ctx, domain)
		if err == nil {
			return resp, attempt, nil
		}
		if !errors.Is(err, passive.ErrRateLimited) {
			return nil, attempt, err
		}
		if f.metrics != nil {
			f.metrics.RateLimited()
		}

		if f.policy.Exhausted(attempt - 1) {
			return nil, attempt, fmt.Errorf("gave up after %d retries: %w", attempt-1, err)
		}

		// Retry-After may lengthen the wait, never shorten it.
		wait := f.policy.Backoff(attempt)
		var se *passive.StatusError
		if errors.As(err, &se) && se.HasRetry {
			wait = max(wait, f.policy.Clamp(se.RetryAfter))
		}
		f.reporter.RateLimited(domain, attempt, wait)

		if err := f.sleep(ctx, wait); err != nil {
			return nil, attempt, err
		}
	}
}

func (f *Fetcher) fail(res models.FetchResult, status models.FetchStatus, err error) models.FetchResult {
	res.Status = status
	res.Err = fmt.Errorf("%s: %w", res.Domain, err)
	f.reporter.Failed(res)
	return res
}

func classify(ctx context.Context, err error) models.FetchStatus {
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return models.StatusCancelled
	case errors.Is(err, passive.ErrRateLimited):
		return models.StatusRateLimited
	case errors.Is(err, passive.ErrDecode):
		return models.StatusDecodeError
	default:
		return models.StatusHTTPError
	}
}

func (f *Fetcher) observe(res models.FetchResult) {
	if f.metrics == nil {
		return
	}
	saved := 0
	if res.Status == models.StatusSaved {
		saved = res.Count
	}
	f.metrics.FetchDone(string(res.Status), res.Duration, saved)
}

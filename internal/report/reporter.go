package report

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

// Reporter receives the outcome of every step a fetch or batch goes through.
type Reporter interface {
	DomainsLoaded(source string, count int)
	RateLimited(domain string, attempt int, wait time.Duration)
	Saved(result models.FetchResult)
	NoMatches(domain string)
	Failed(result models.FetchResult)
	BatchDone(summary *models.BatchSummary)
}

type LogReporter struct {
	logger *logrus.Logger
}

func NewLogReporter(logger *logrus.Logger) *LogReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) DomainsLoaded(source string, count int) {
	r.logger.WithFields(logrus.Fields{"source": source, "domains": count}).
		Infof("Found %d domains in %s. Fetching subdomains...", count, source)
}

func (r *LogReporter) RateLimited(domain string, attempt int, wait time.Duration) {
	r.logger.WithFields(logrus.Fields{"domain": domain, "attempt": attempt, "wait": wait.String()}).
		Warnf("Rate limit hit for %s. Retrying in %s...", domain, wait)
}

func (r *LogReporter) Saved(res models.FetchResult) {
	r.logger.WithFields(logrus.Fields{
		"domain":   res.Domain,
		"count":    res.Count,
		"file":     res.OutputFile,
		"attempts": res.Attempts,
	}).Infof("%d subdomains for %s saved to %s", res.Count, res.Domain, res.OutputFile)
}

func (r *LogReporter) NoMatches(domain string) {
	r.logger.WithField("domain", domain).Warnf("No matching subdomains found for %s.", domain)
}

func (r *LogReporter) Failed(res models.FetchResult) {
	entry := r.logger.WithFields(logrus.Fields{
		"domain":   res.Domain,
		"status":   string(res.Status),
		"attempts": res.Attempts,
	})
	switch res.Status {
	case models.StatusDecodeError:
		entry.Errorf("Failed to parse JSON response for %s: %v", res.Domain, res.Err)
	case models.StatusRateLimited:
		entry.Errorf("Giving up on %s after %d rate-limited attempts: %v", res.Domain, res.Attempts, res.Err)
	case models.StatusWriteError:
		entry.Errorf("Failed to save subdomains for %s: %v", res.Domain, res.Err)
	case models.StatusCancelled:
		entry.Warnf("Fetch for %s cancelled: %v", res.Domain, res.Err)
	default:
		entry.Errorf("Failed to fetch data for %s: %v", res.Domain, res.Err)
	}
}

func (r *LogReporter) BatchDone(s *models.BatchSummary) {
	fields := logrus.Fields{
		"domains":  s.Domains,
		"saved":    s.Saved(),
		"failed":   s.Failed(),
		"duration": s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String(),
	}
	for status, n := range s.ByStatus {
		fields["status_"+string(status)] = n
	}
	r.logger.WithFields(fields).Infof("Finished %d domains from %s", s.Domains, s.Source)
}

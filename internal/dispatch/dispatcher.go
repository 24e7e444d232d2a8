package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/otxsubs/internal/report"
	"github.com/bl4ck0w1/otxsubs/pkg/models"
	"github.com/bl4ck0w1/otxsubs/pkg/utils"
)

const Prompt = "Enter a domain (e.g., domain.com) or a file containing domains: "

var ErrNoInput = errors.New("no domain or file given")

type Mode int

const (
	// ModeAuto treats the value as a file when one exists at that path.
	ModeAuto Mode = iota
	ModeDomain
	ModeList
)

func (m Mode) String() string {
	switch m {
	case ModeDomain:
		return "domain"
	case ModeList:
		return "list"
	default:
		return "auto"
	}
}

type Input struct {
	Mode  Mode
	Value string
}

type DomainFetcher interface {
	Fetch(ctx context.Context, domain string) models.FetchResult
}

type Dispatcher struct {
	fetcher  DomainFetcher
	reporter report.Reporter
	logger   *logrus.Logger
	metrics  *utils.FetchMetrics
	stdin    io.Reader
	stdout   io.Writer
}

type Option func(*Dispatcher)

func WithPromptIO(in io.Reader, out io.Writer) Option {
	return func(d *Dispatcher) {
		d.stdin = in
		d.stdout = out
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *utils.FetchMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(fetcher DomainFetcher, reporter report.Reporter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fetcher: fetcher,
		logger:  logrus.StandardLogger(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reporter = reporter
	if d.reporter == nil {
		d.reporter = report.NewLogReporter(d.logger)
	}
	return d
}

// Run resolves in to a list of domains and fetches them one after another.
// Per-domain failures are part of the summary. Input problems are returned
// without a summary; a cancelled ctx returns the partial summary and ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, in Input) (*models.BatchSummary, error) {
	if strings.TrimSpace(in.Value) == "" && in.Mode == ModeAuto {
		v, err := d.prompt()
		if err != nil {
			return nil, err
		}
		in.Value = v
	}

	domains, source, err := d.Resolve(in)
	if err != nil {
		return nil, err
	}

	summary := models.NewBatchSummary(source)
	if d.metrics != nil {
		d.metrics.BatchSize(source, len(domains))
	}

	for i, domain := range domains {
		if err := ctx.Err(); err != nil {
			d.logger.WithFields(logrus.Fields{"remaining": len(domains) - i}).Warn("Batch interrupted, skipping remaining domains")
			break
		}
		if !utils.IsValidDomain(domain) {
			d.logger.WithField("domain", domain).Warnf("%q does not look like a domain name, querying anyway", domain)
		}
		summary.Add(d.fetcher.Fetch(ctx, domain))
	}

	summary.Finish()
	d.reporter.BatchDone(summary)
	return summary, ctx.Err()
}

// Resolve turns an input into the ordered domain list and a label naming
// where it came from.
func (d *Dispatcher) Resolve(in Input) ([]string, string, error) {
	value := strings.TrimSpace(in.Value)
	if value == "" {
		return nil, "", ErrNoInput
	}

	switch in.Mode {
	case ModeDomain:
		return []string{value}, value, nil
	case ModeList:
		domains, err := d.readList(value)
		return domains, value, err
	default:
		if isRegularFile(value) {
			domains, err := d.readList(value)
			return domains, value, err
		}
		return []string{value}, value, nil
	}
}

func (d *Dispatcher) readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open domain list: %w", err)
	}
	defer f.Close()

	domains, err := ReadDomains(f)
	if err != nil {
		return nil, fmt.Errorf("read domain list %s: %w", path, err)
	}
	d.reporter.DomainsLoaded(path, len(domains))
	return domains, nil
}

// ReadDomains returns the trimmed non-empty lines of r in order, keeping
// duplicates and skipping lines that start with '#'.
func ReadDomains(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func (d *Dispatcher) prompt() (string, error) {
	if _, err := fmt.Fprint(d.stdout, Prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := bufio.NewReader(d.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ErrNoInput
	}
	return line, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

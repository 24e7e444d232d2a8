package resolve

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

var liveTypes = []uint16{mdns.TypeA, mdns.TypeAAAA, mdns.TypeCNAME}

type Resolver struct {
	servers     []string
	timeout     time.Duration
	maxRetries  int
	concurrency int
	udpClient   *mdns.Client
	tcpClient   *mdns.Client
	logger      *logrus.Logger
	mu          sync.Mutex
	rotateIndex int
	cache       map[string]bool
}

func NewResolver(cfg models.ResolveConfig, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	servers := normalizeServers(cfg.Servers)
	if len(servers) == 0 {
		servers = systemResolvers()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	return &Resolver{
		servers:     servers,
		timeout:     timeout,
		maxRetries:  max(0, cfg.Retries),
		concurrency: concurrency,
		udpClient: &mdns.Client{
			Net:     "udp",
			Timeout: timeout,
			UDPSize: 1232,
		},
		tcpClient: &mdns.Client{
			Net:     "tcp",
			Timeout: timeout,
		},
		logger: logger,
		cache:  make(map[string]bool),
	}
}

// FilterLive keeps the hosts that answer A, AAAA or CNAME, preserving input
// order. Hosts whose lookups fail for other reasons are dropped and logged.
func (r *Resolver) FilterLive(ctx context.Context, hosts []string) ([]string, error) {
	live := make([]bool, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, h := range hosts {
		g.Go(func() error {
			ok, err := r.IsLive(gctx, h)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.WithField("host", h).Debugf("resolution failed: %v", err)
				return nil
			}
			live[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve hosts: %w", err)
	}

	out := make([]string, 0, len(hosts))
	for i, h := range hosts {
		if live[i] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *Resolver) IsLive(ctx context.Context, host string) (bool, error) {
	ascii, err := idna.ToASCII(strings.TrimSpace(host))
	if err != nil || ascii == "" {
		return false, fmt.Errorf("invalid host %q: %v", host, err)
	}
	ascii = strings.ToLower(ascii)

	r.mu.Lock()
	cached, ok := r.cache[ascii]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	var lastErr error
	for _, qt := range liveTypes {
		n, err := r.resolveWithRetry(ctx, ascii, qt)
		if err != nil {
			if IsNXDomain(err) {
				r.store(ascii, false)
				return false, nil
			}
			lastErr = err
			continue
		}
		if n > 0 {
			r.store(ascii, true)
			return true, nil
		}
	}
	if lastErr != nil {
		return false, lastErr
	}
	r.store(ascii, false)
	return false, nil
}

func (r *Resolver) store(host string, live bool) {
	r.mu.Lock()
	r.cache[host] = live
	r.mu.Unlock()
}

func (r *Resolver) resolveWithRetry(ctx context.Context, host string, qtype uint16) (int, error) {
	var answers int
	err := NewRetryHandler(r.maxRetries, r.timeout/10, r.logger).DoWithRetry(ctx, func() error {
		n, err := r.exchange(ctx, host, qtype)
		if err != nil {
			return err
		}
		answers = n
		return nil
	})
	return answers, err
}

func (r *Resolver) exchange(ctx context.Context, host string, qtype uint16) (int, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(1232, false)

	server := r.selectServer()
	resp, _, err := r.udpClient.ExchangeContext(ctx, msg, server)
	if err != nil || (resp != nil && resp.Truncated) {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, msg, server)
		if err != nil {
			return 0, fmt.Errorf("DNS TCP query failed: %w", err)
		}
	}
	if resp == nil {
		return 0, fmt.Errorf("nil DNS response")
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return 0, &RcodeError{Rcode: resp.Rcode}
	}

	n := 0
	for _, rr := range resp.Answer {
		switch rr.(type) {
		case *mdns.A, *mdns.AAAA, *mdns.CNAME:
			n++
		}
	}
	return n, nil
}

func (r *Resolver) selectServer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	server := r.servers[r.rotateIndex%len(r.servers)]
	r.rotateIndex = (r.rotateIndex + 1) % len(r.servers)
	return server
}

func normalizeServers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		out = append(out, s)
	}
	return out
}

func systemResolvers() []string {
	cfg, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || cfg == nil || len(cfg.Servers) == 0 {
		return []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

package report

import (
	"sync"
	"time"

	"github.com/bl4ck0w1/otxsubs/pkg/models"
)

type EventKind string

const (
	EventDomainsLoaded EventKind = "domains_loaded"
	EventRateLimited   EventKind = "rate_limited"
	EventSaved         EventKind = "saved"
	EventNoMatches     EventKind = "no_matches"
	EventFailed        EventKind = "failed"
	EventBatchDone     EventKind = "batch_done"
)

type Event struct {
	Kind    EventKind
	Domain  string
	Source  string
	Count   int
	Attempt int
	Wait    time.Duration
	Result  models.FetchResult
}

// Recorder keeps every event in memory so callers can inspect outcomes
// without parsing log output.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	summary *models.BatchSummary
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) DomainsLoaded(source string, count int) {
	r.add(Event{Kind: EventDomainsLoaded, Source: source, Count: count})
}

func (r *Recorder) RateLimited(domain string, attempt int, wait time.Duration) {
	r.add(Event{Kind: EventRateLimited, Domain: domain, Attempt: attempt, Wait: wait})
}

func (r *Recorder) Saved(res models.FetchResult) {
	r.add(Event{Kind: EventSaved, Domain: res.Domain, Count: res.Count, Result: res})
}

func (r *Recorder) NoMatches(domain string) {
	r.add(Event{Kind: EventNoMatches, Domain: domain})
}

func (r *Recorder) Failed(res models.FetchResult) {
	r.add(Event{Kind: EventFailed, Domain: res.Domain, Result: res})
}

func (r *Recorder) BatchDone(s *models.BatchSummary) {
	r.mu.Lock()
	r.summary = s
	r.mu.Unlock()
	r.add(Event{Kind: EventBatchDone, Source: s.Source, Count: s.Domains})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *Recorder) ByKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Summary() *models.BatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Multi fans every event out to each reporter in order.
type Multi []Reporter

func (m Multi) DomainsLoaded(source string, count int) {
	for _, r := range m {
		r.DomainsLoaded(source, count)
	}
}

func (m Multi) RateLimited(domain string, attempt int, wait time.Duration) {
	for _, r := range m {
		r.RateLimited(domain, attempt, wait)
	}
}

func (m Multi) Saved(res models.FetchResult) {
	for _, r := range m {
		r.Saved(res)
	}
}

func (m Multi) NoMatches(domain string) {
	for _, r := range m {
		r.NoMatches(domain)
	}
}

func (m Multi) Failed(res models.FetchResult) {
	for _, r := range m {
		r.Failed(res)
	}
}

func (m Multi) BatchDone(s *models.BatchSummary) {
	for _, r := range m {
		r.BatchDone(s)
	}
}

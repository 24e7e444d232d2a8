package models

import "time"

type FetchStatus string

const (
	StatusSaved       FetchStatus = "saved"
	StatusNoMatches   FetchStatus = "no_matches"
	StatusHTTPError   FetchStatus = "http_error"
	StatusDecodeError FetchStatus = "decode_error"
	StatusRateLimited FetchStatus = "rate_limited"
	StatusWriteError  FetchStatus = "write_error"
	StatusCancelled   FetchStatus = "cancelled"
)

// FetchResult is the outcome of one domain query. Err is set for every
// status except saved and no_matches.
type FetchResult struct {
	Domain     string        `json:"domain" yaml:"domain"`
	Status     FetchStatus   `json:"status" yaml:"status"`
	Count      int           `json:"count" yaml:"count"`
	Subdomains []string      `json:"subdomains,omitempty" yaml:"subdomains,omitempty"`
	OutputFile string        `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Err        error         `json:"-" yaml:"-"`
}

func (r FetchResult) Failed() bool {
	return r.Err != nil
}

type BatchSummary struct {
	Source    string              `json:"source" yaml:"source"`
	Domains   int                 `json:"domains" yaml:"domains"`
	ByStatus  map[FetchStatus]int `json:"by_status" yaml:"by_status"`
	Results   []FetchResult       `json:"results" yaml:"results"`
	StartTime time.Time           `json:"start_time" yaml:"start_time"`
	EndTime   time.Time           `json:"end_time" yaml:"end_time"`
}

func NewBatchSummary(source string) *BatchSummary {
	return &BatchSummary{
		Source:    source,
		ByStatus:  make(map[FetchStatus]int),
		StartTime: time.Now(),
	}
}

func (s *BatchSummary) Add(r FetchResult) {
	s.Domains++
	s.ByStatus[r.Status]++
	s.Results = append(s.Results, r)
}

func (s *BatchSummary) Finish() {
	s.EndTime = time.Now()
}

func (s *BatchSummary) Saved() int {
	return s.ByStatus[StatusSaved]
}

func (s *BatchSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

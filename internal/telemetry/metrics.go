// Package telemetry keeps in-process query statistics for the running
// server. Nothing is persisted or reported externally.
package telemetry

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/pdfrag/internal/store"
)

// Bucket names a latency range. A query lands in the first bucket whose
// bound exceeds its latency.
type Bucket string

const (
	Under10ms  Bucket = "p10"
	Under50ms  Bucket = "p50"
	Under100ms Bucket = "p100"
	Under500ms Bucket = "p500"
	Slow       Bucket = "p1000"
)

var bucketBounds = []struct {
	below time.Duration
	name  Bucket
}{
	{10 * time.Millisecond, Under10ms},
	{50 * time.Millisecond, Under50ms},
	{100 * time.Millisecond, Under100ms},
	{500 * time.Millisecond, Under500ms},
}

// BucketOf returns the latency bucket for d.
func BucketOf(d time.Duration) Bucket {
	for _, b := range bucketBounds {
		if d < b.below {
			return b.name
		}
	}
	return Slow
}

// QueryEvent describes one finished search.
type QueryEvent struct {
	Query       string
	Mode        string
	ResultCount int
	Latency     time.Duration
	ErrorKind   string // empty on success
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a copy of the statistics at one moment.
type Snapshot struct {
	Total             int64            `json:"total_queries"`
	Failed            int64            `json:"failed_queries"`
	ZeroResults       int64            `json:"zero_result_count"`
	ByMode            map[string]int64 `json:"mode_counts"`
	Latency           map[Bucket]int64 `json:"latency_distribution"`
	TopTerms          []TermCount      `json:"top_terms"`
	RecentZeroResults []string         `json:"zero_result_queries"`
	Since             time.Time        `json:"since"`
}

// ZeroResultRate is the percentage of successful queries that found nothing.
func (s *Snapshot) ZeroResultRate() float64 {
	succeeded := s.Total - s.Failed
	if succeeded <= 0 {
		return 0
	}
	return 100 * float64(s.ZeroResults) / float64(succeeded)
}

// Config sizes the collector. Zero fields take DefaultConfig values.
type Config struct {
	TrackedTerms  int // distinct terms remembered
	ReportedTerms int // terms returned in a Snapshot
	RecentMisses  int // zero-result queries kept
}

func DefaultConfig() Config {
	return Config{TrackedTerms: 100, ReportedTerms: 10, RecentMisses: 20}
}

// QueryMetrics aggregates QueryEvents. Methods are safe for concurrent use
// and a nil *QueryMetrics drops every event.
type QueryMetrics struct {
	cfg   Config
	stops map[string]struct{}

	mu     sync.Mutex
	snap   Snapshot
	terms  *lru.Cache[string, int64]
	misses *Ring[string]
}

func NewQueryMetrics(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	cfg.TrackedTerms = positiveOr(cfg.TrackedTerms, def.TrackedTerms)
	cfg.ReportedTerms = positiveOr(cfg.ReportedTerms, def.ReportedTerms)
	cfg.RecentMisses = positiveOr(cfg.RecentMisses, def.RecentMisses)

	terms, _ := lru.New[string, int64](cfg.TrackedTerms)
	return &QueryMetrics{
		cfg:   cfg,
		stops: store.BuildStopWordMap(store.DefaultStopWords),
		snap: Snapshot{
			ByMode:  map[string]int64{},
			Latency: map[Bucket]int64{},
			Since:   time.Now(),
		},
		terms:  terms,
		misses: NewRing[string](cfg.RecentMisses),
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Record folds ev into the totals. Terms and misses are only counted for
// successful queries.
func (m *QueryMetrics) Record(ev QueryEvent) {
	if m == nil {
		return
	}
	words := store.FilterStopWords(store.Tokenize(ev.Query), m.stops)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Total++
	m.snap.ByMode[ev.Mode]++
	m.snap.Latency[BucketOf(ev.Latency)]++
	if ev.ErrorKind != "" {
		m.snap.Failed++
		return
	}
	for _, w := range words {
		n, _ := m.terms.Peek(w)
		m.terms.Add(w, n+1)
	}
	if ev.ResultCount == 0 {
		m.snap.ZeroResults++
		m.misses.Push(ev.Query)
	}
}

// Snapshot copies the current statistics. Top terms are ordered by count,
// ties by term.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.snap
	s.ByMode = maps.Clone(m.snap.ByMode)
	s.Latency = maps.Clone(m.snap.Latency)
	s.RecentZeroResults = m.misses.Items()

	s.TopTerms = make([]TermCount, 0, m.terms.Len())
	for _, k := range m.terms.Keys() {
		if n, ok := m.terms.Peek(k); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: k, Count: n})
		}
	}
	slices.SortFunc(s.TopTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if len(s.TopTerms) > m.cfg.ReportedTerms {
		s.TopTerms = s.TopTerms[:m.cfg.ReportedTerms]
	}
	return &s
}

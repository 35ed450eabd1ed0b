package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Metric primitives rendered in the Prometheus text exposition format. Series
// are emitted sorted by label set so consecutive scrapes diff cleanly.

// family is a named set of float series keyed by their rendered label set.
type family struct {
	name   string
	help   string
	kind   string
	labels []string

	mu     sync.Mutex
	series map[string]float64
}

func newFamily(kind, name, help string, labels []string) *family {
	return &family{name: name, help: help, kind: kind, labels: labels, series: map[string]float64{}}
}

func (f *family) apply(values []string, fn func(float64) float64) {
	key := labelString(f.labels, values)
	f.mu.Lock()
	f.series[key] = fn(f.series[key])
	f.mu.Unlock()
}

func (f *family) get(values ...string) float64 {
	key := labelString(f.labels, values)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series[key]
}

func (f *family) WritePrometheus(w io.Writer) error {
	var b strings.Builder
	writeHeader(&b, f.name, f.help, f.kind)
	f.mu.Lock()
	for _, k := range sortedKeys(f.series) {
		fmt.Fprintf(&b, "%s%s %s\n", f.name, k, formatFloat(f.series[k]))
	}
	f.mu.Unlock()
	_, err := io.WriteString(w, b.String())
	return err
}

func add(d float64) func(float64) float64 { return func(v float64) float64 { return v + d } }
func set(x float64) func(float64) float64 { return func(float64) float64 { return x } }

type CounterVec struct{ f *family }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{f: newFamily("counter", name, help, labels)}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c != nil {
		c.f.apply(values, add(v))
	}
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.WritePrometheus(w)
}

// Counter is a CounterVec without labels. Unlabeled series render from zero.
type Counter struct{ f *family }

func NewCounter(name, help string) *Counter {
	c := &Counter{f: newFamily("counter", name, help, nil)}
	c.f.series[""] = 0
	return c
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	if c != nil {
		c.f.apply(nil, add(v))
	}
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	return c.f.get()
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.WritePrometheus(w)
}

type GaugeVec struct{ f *family }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{f: newFamily("gauge", name, help, labels)}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g != nil {
		g.f.apply(values, set(v))
	}
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.WritePrometheus(w)
}

// Gauge is a GaugeVec without labels.
type Gauge struct{ f *family }

func NewGauge(name, help string) *Gauge {
	g := &Gauge{f: newFamily("gauge", name, help, nil)}
	g.f.series[""] = 0
	return g
}

func (g *Gauge) Set(v float64) {
	if g != nil {
		g.f.apply(nil, set(v))
	}
}

func (g *Gauge) Inc() {
	if g != nil {
		g.f.apply(nil, add(1))
	}
}

func (g *Gauge) Dec() {
	if g != nil {
		g.f.apply(nil, add(-1))
	}
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.WritePrometheus(w)
}

var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// HistogramVec keeps cumulative bucket counts per label set.
type HistogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.Mutex
	series map[string]*histogram
}

type histogram struct {
	counts []uint64 // one per bucket, cumulative
	sum    float64
	n      uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	return &HistogramVec{name: name, help: help, labels: labels, buckets: buckets, series: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := labelString(h.labels, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.series[key]
	if s == nil {
		s = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = s
	}
	s.sum += v
	s.n++
	for i, upper := range h.buckets {
		if v <= upper {
			s.counts[i]++
		}
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	var b strings.Builder
	writeHeader(&b, h.name, h.help, "histogram")
	h.mu.Lock()
	for _, k := range sortedKeys(h.series) {
		s := h.series[k]
		for i, upper := range h.buckets {
			fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, withLe(k, formatFloat(upper)), s.counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), s.n)
		fmt.Fprintf(&b, "%s_sum%s %s\n", h.name, k, formatFloat(s.sum))
		fmt.Fprintf(&b, "%s_count%s %d\n", h.name, k, s.n)
	}
	h.mu.Unlock()
	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// labelString renders {name="value",...}. Missing values render as "unknown".
func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	pairs := make([]string, len(names))
	for i, name := range names {
		v := "unknown"
		if i < len(values) {
			v = values[i]
		}
		pairs[i] = name + `="` + labelEscaper.Replace(v) + `"`
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func withLe(labels, le string) string {
	le = `le="` + labelEscaper.Replace(le) + `"`
	if inner := strings.TrimSuffix(strings.TrimPrefix(labels, "{"), "}"); inner != "" {
		return "{" + inner + "," + le + "}"
	}
	return "{" + le + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type turnKey struct {
	intent string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	turns    map[turnKey]uint64
	latency  map[string]*histogram
}

var defaultCollector = &collector{
	requests: make(map[requestKey]uint64),
	turns:    make(map[turnKey]uint64),
	latency:  make(map[string]*histogram),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.observeRequest(handler, method, status, duration)
}

// ObserveChatTurn records one dispatched chat turn by its routed intent.
func ObserveChatTurn(intent string) {
	defaultCollector.observeTurn(intent)
}

func (c *collector) observeRequest(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKey := requestKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[reqKey]++

	hist := c.latency[handler]
	if hist == nil {
		hist = newHistogram()
		c.latency[handler] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeTurn(intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[turnKey{intent: intent}]++
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, defaultCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type requestMetric struct {
		requestKey
		value uint64
	}
	type turnMetric struct {
		turnKey
		value uint64
	}
	type latencyMetric struct {
		handler string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	reqs := make([]requestMetric, 0, len(c.requests))
	for key, value := range c.requests {
		reqs = append(reqs, requestMetric{requestKey: key, value: value})
	}
	turns := make([]turnMetric, 0, len(c.turns))
	for key, value := range c.turns {
		turns = append(turns, turnMetric{turnKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for handler, hist := range c.latency {
		lats = append(lats, latencyMetric{
			handler: handler,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler == reqs[j].handler {
			if reqs[i].method == reqs[j].method {
				return reqs[i].code < reqs[j].code
			}
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].handler < reqs[j].handler
	})
	sort.Slice(turns, func(i, j int) bool { return turns[i].intent < turns[j].intent })
	sort.Slice(lats, func(i, j int) bool { return lats[i].handler < lats[j].handler })

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP defai_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE defai_http_requests_total counter\n")
	for _, metric := range reqs {
		builder.WriteString(fmt.Sprintf("defai_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), escape(metric.code), metric.value))
	}

	builder.WriteString("# HELP defai_chat_turns_total Total number of chat turns by routed intent.\n")
	builder.WriteString("# TYPE defai_chat_turns_total counter\n")
	for _, metric := range turns {
		builder.WriteString(fmt.Sprintf("defai_chat_turns_total{intent=\"%s\"} %d\n",
			escape(metric.intent), metric.value))
	}

	builder.WriteString("# HELP defai_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE defai_http_request_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("defai_http_request_duration_seconds_bucket{handler=\"%s\",le=\"%s\"} %d\n",
				escape(metric.handler), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("defai_http_request_duration_seconds_bucket{handler=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.handler), metric.count))
		builder.WriteString(fmt.Sprintf("defai_http_request_duration_seconds_sum{handler=\"%s\"} %s\n",
			escape(metric.handler), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("defai_http_request_duration_seconds_count{handler=\"%s\"} %d\n",
			escape(metric.handler), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

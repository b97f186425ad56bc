package metrics

import (
	"sync"
	"time"
)

// Outcome labels how a streamed response ended.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailedPreCommit  Outcome = "failed_precommit"
	OutcomeFailedPostCommit Outcome = "failed_postcommit"
	OutcomeCancelled        Outcome = "cancelled"
)

// Collector tracks response pipeline counters for Prometheus scraping.
// Counters are kept in plain maps keyed by endpoint name.
type Collector struct {
	mu sync.RWMutex

	// Request metrics
	totalRequests      map[string]int64 // by endpoint
	totalRequestsDur   map[string]int64 // total duration in ms
	requestsInProgress map[string]int64

	// Stream metrics
	outcomes      map[string]map[Outcome]int64 // endpoint -> outcome -> count
	dispositions  map[string]int64             // "sync" / "incremental"
	bytesStreamed map[string]int64
	firstByteDur  map[string]int64 // total time to first byte in ms
	firstByteN    map[string]int64

	// Rate limit metrics
	rateLimitHits  int64
	rateLimitByKey map[string]int64

	// Generator metrics
	generatorRequests map[string]int64
	generatorErrors   map[string]int64
	generatorLatency  map[string]int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:      make(map[string]int64),
		totalRequestsDur:   make(map[string]int64),
		requestsInProgress: make(map[string]int64),
		outcomes:           make(map[string]map[Outcome]int64),
		dispositions:       make(map[string]int64),
		bytesStreamed:      make(map[string]int64),
		firstByteDur:       make(map[string]int64),
		firstByteN:         make(map[string]int64),
		rateLimitByKey:     make(map[string]int64),
		generatorRequests:  make(map[string]int64),
		generatorErrors:    make(map[string]int64),
		generatorLatency:   make(map[string]int64),
		startTime:          time.Now(),
	}
}

// RecordRequestStart increments in-progress requests.
func (c *Collector) RecordRequestStart(endpoint string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[endpoint]++
}

// RecordRequestEnd decrements in-progress requests and records the request.
func (c *Collector) RecordRequestEnd(endpoint string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsInProgress[endpoint]--
	c.totalRequests[endpoint]++
	c.totalRequestsDur[endpoint] += duration.Milliseconds()
}

// RecordDisposition counts which delivery path served a request.
func (c *Collector) RecordDisposition(disposition string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispositions[disposition]++
}

// RecordOutcome records how a stream ended and how many bytes reached the client.
func (c *Collector) RecordOutcome(endpoint string, outcome Outcome, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byOutcome := c.outcomes[endpoint]
	if byOutcome == nil {
		byOutcome = make(map[Outcome]int64)
		c.outcomes[endpoint] = byOutcome
	}
	byOutcome[outcome]++
	c.bytesStreamed[endpoint] += bytes
}

// RecordFirstByte records the latency until the response committed.
func (c *Collector) RecordFirstByte(endpoint string, latency time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstByteDur[endpoint] += latency.Milliseconds()
	c.firstByteN[endpoint]++
}

// RecordRateLimitHit records a rate limit rejection.
func (c *Collector) RecordRateLimitHit(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitHits++
	c.rateLimitByKey[key]++
}

// RecordGeneratorRequest records one upstream generation call.
func (c *Collector) RecordGeneratorRequest(generator string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generatorRequests[generator]++
	c.generatorLatency[generator] += duration.Milliseconds()
	if err != nil {
		c.generatorErrors[generator]++
	}
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime             int64
	TotalRequests      map[string]int64
	TotalRequestsDur   map[string]int64
	RequestsInProgress map[string]int64
	Outcomes           map[string]map[Outcome]int64
	Dispositions       map[string]int64
	BytesStreamed      map[string]int64
	FirstByteDur       map[string]int64
	FirstByteCount     map[string]int64
	RateLimitHits      int64
	RateLimitByKey     map[string]int64
	GeneratorRequests  map[string]int64
	GeneratorErrors    map[string]int64
	GeneratorLatency   map[string]int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outcomes := make(map[string]map[Outcome]int64, len(c.outcomes))
	for endpoint, byOutcome := range c.outcomes {
		inner := make(map[Outcome]int64, len(byOutcome))
		for k, v := range byOutcome {
			inner[k] = v
		}
		outcomes[endpoint] = inner
	}

	return Snapshot{
		Uptime:             int64(time.Since(c.startTime).Seconds()),
		TotalRequests:      copyMap(c.totalRequests),
		TotalRequestsDur:   copyMap(c.totalRequestsDur),
		RequestsInProgress: copyMap(c.requestsInProgress),
		Outcomes:           outcomes,
		Dispositions:       copyMap(c.dispositions),
		BytesStreamed:      copyMap(c.bytesStreamed),
		FirstByteDur:       copyMap(c.firstByteDur),
		FirstByteCount:     copyMap(c.firstByteN),
		RateLimitHits:      c.rateLimitHits,
		RateLimitByKey:     copyMap(c.rateLimitByKey),
		GeneratorRequests:  copyMap(c.generatorRequests),
		GeneratorErrors:    copyMap(c.generatorErrors),
		GeneratorLatency:   copyMap(c.generatorLatency),
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

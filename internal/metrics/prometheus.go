package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	header(&sb, "boltd_uptime_seconds", "gauge", "Time since boltd started")
	sb.WriteString(fmt.Sprintf("boltd_uptime_seconds %d\n\n", snap.Uptime))

	header(&sb, "boltd_requests_total", "counter", "Total number of requests by endpoint")
	writeByLabel(&sb, "boltd_requests_total", "endpoint", snap.TotalRequests)

	header(&sb, "boltd_requests_in_progress", "gauge", "Current number of requests being served")
	for _, endpoint := range sortedKeys(snap.RequestsInProgress) {
		if count := snap.RequestsInProgress[endpoint]; count > 0 {
			sb.WriteString(fmt.Sprintf("boltd_requests_in_progress{endpoint=\"%s\"} %d\n", endpoint, count))
		}
	}
	sb.WriteString("\n")

	header(&sb, "boltd_request_duration_ms_total", "counter", "Total request duration in milliseconds")
	writeByLabel(&sb, "boltd_request_duration_ms_total", "endpoint", snap.TotalRequestsDur)

	header(&sb, "boltd_stream_outcomes_total", "counter", "Streams by endpoint and terminal outcome")
	for _, endpoint := range sortedKeys(snap.Outcomes) {
		byOutcome := snap.Outcomes[endpoint]
		outcomes := make([]string, 0, len(byOutcome))
		for o := range byOutcome {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			sb.WriteString(fmt.Sprintf("boltd_stream_outcomes_total{endpoint=\"%s\",outcome=\"%s\"} %d\n",
				endpoint, o, byOutcome[Outcome(o)]))
		}
	}
	sb.WriteString("\n")

	header(&sb, "boltd_stream_dispositions_total", "counter", "Responses by delivery path")
	writeByLabel(&sb, "boltd_stream_dispositions_total", "disposition", snap.Dispositions)

	header(&sb, "boltd_stream_bytes_total", "counter", "Bytes released to clients")
	writeByLabel(&sb, "boltd_stream_bytes_total", "endpoint", snap.BytesStreamed)

	header(&sb, "boltd_first_byte_ms_total", "counter", "Total time to first byte in milliseconds")
	writeByLabel(&sb, "boltd_first_byte_ms_total", "endpoint", snap.FirstByteDur)

	header(&sb, "boltd_first_byte_count", "counter", "Responses that released a first byte")
	writeByLabel(&sb, "boltd_first_byte_count", "endpoint", snap.FirstByteCount)

	header(&sb, "boltd_rate_limit_hits_total", "counter", "Total number of rate limit rejections")
	sb.WriteString(fmt.Sprintf("boltd_rate_limit_hits_total %d\n\n", snap.RateLimitHits))

	header(&sb, "boltd_rate_limit_by_key_total", "counter", "Rate limit hits by client")
	for _, key := range sortedKeys(snap.RateLimitByKey) {
		sb.WriteString(fmt.Sprintf("boltd_rate_limit_by_key_total{key=\"%s\"} %d\n", maskKey(key), snap.RateLimitByKey[key]))
	}
	sb.WriteString("\n")

	header(&sb, "boltd_generator_requests_total", "counter", "Total upstream generation calls")
	writeByLabel(&sb, "boltd_generator_requests_total", "generator", snap.GeneratorRequests)

	header(&sb, "boltd_generator_errors_total", "counter", "Total upstream generation errors")
	writeByLabel(&sb, "boltd_generator_errors_total", "generator", snap.GeneratorErrors)

	header(&sb, "boltd_generator_latency_ms_total", "counter", "Total upstream generation latency in milliseconds")
	writeByLabel(&sb, "boltd_generator_latency_ms_total", "generator", snap.GeneratorLatency)

	return sb.String()
}

func header(sb *strings.Builder, name, kind, help string) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, kind))
}

func writeByLabel(sb *strings.Builder, name, label string, values map[string]int64) {
	for _, k := range sortedKeys(values) {
		sb.WriteString(fmt.Sprintf("%s{%s=\"%s\"} %d\n", name, label, k, values[k]))
	}
	sb.WriteString("\n")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// maskKey hides client addresses, keeping the last 4 characters.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "client_***"
	}
	return "client_***" + key[len(key)-4:]
}

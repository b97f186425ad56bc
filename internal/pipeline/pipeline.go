// Package pipeline serves one producer-backed response per request, choosing
// between a fully buffered render and an incremental stream.
package pipeline

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tokligence/boltstream/internal/classify"
	"github.com/tokligence/boltstream/internal/envelope"
	"github.com/tokligence/boltstream/internal/ledger"
	"github.com/tokligence/boltstream/internal/metrics"
	"github.com/tokligence/boltstream/internal/stream"
)

// Recorder persists one entry per finished response.
type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// Job describes one response.
type Job struct {
	// Endpoint names the route for logs, metrics and the ledger.
	Endpoint string
	Kind     envelope.Kind
	Producer stream.Producer
	// Document is the page scaffolding; ignored for text jobs.
	Document envelope.Document
	// ForceSync serves the job through the buffered path regardless of client.
	ForceSync bool

	Model       string
	PromptChars int
}

// Options configures a Pipeline. Every field is optional.
type Options struct {
	Classifier *classify.Classifier
	Logger     *log.Logger
	Metrics    *metrics.Collector
	Ledger     Recorder
	// MaxDuration bounds a single response. Zero leaves it to the transport.
	MaxDuration time.Duration
	// ErrorMarker is written in-band before a committed stream is aborted.
	ErrorMarker string
	Debug       bool
}

// Pipeline is safe for concurrent use; it keeps no per-request state.
type Pipeline struct {
	classifier  *classify.Classifier
	logger      *log.Logger
	metrics     *metrics.Collector
	ledger      Recorder
	translator  FailureTranslator
	maxDuration time.Duration
	debug       bool
}

// New builds a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pipeline{
		classifier:  opts.Classifier,
		logger:      logger,
		metrics:     opts.Metrics,
		ledger:      opts.Ledger,
		translator:  FailureTranslator{Logger: logger, Marker: opts.ErrorMarker},
		maxDuration: opts.MaxDuration,
		debug:       opts.Debug,
	}
}

// Disposition picks the delivery path for job. Text streams are always
// incremental; pages depend on who is asking.
func (p *Pipeline) Disposition(r *http.Request, job Job) classify.Disposition {
	if job.ForceSync {
		return classify.Synchronous
	}
	if job.Kind == envelope.KindText {
		return classify.Incremental
	}
	return p.classifier.ClassifyRequest(r)
}

type result struct {
	outcome ledger.Outcome
	written int64
}

// Serve produces the response for job. A failure after the first byte aborts
// the connection by panicking with http.ErrAbortHandler once accounting is done.
func (p *Pipeline) Serve(w http.ResponseWriter, r *http.Request, job Job) {
	start := time.Now()
	id := RequestID(r)
	disposition := p.Disposition(r, job)

	p.metrics.RecordRequestStart(job.Endpoint)
	p.metrics.RecordDisposition(disposition.String())
	p.debugf("stream %s (%s): serving %s %s", id, job.Endpoint, disposition, job.Kind)

	ctx := r.Context()
	if p.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxDuration)
		defer cancel()
	}

	var res result
	if disposition == classify.Synchronous {
		res = p.serveSync(ctx, w, id, job)
	} else {
		res = p.serveIncremental(ctx, w, id, job, start)
	}

	elapsed := time.Since(start)
	p.metrics.RecordRequestEnd(job.Endpoint, elapsed)
	p.metrics.RecordOutcome(job.Endpoint, metrics.Outcome(res.outcome), res.written)
	p.record(r.Context(), ledger.Entry{
		RequestID:       id,
		Endpoint:        job.Endpoint,
		Model:           job.Model,
		PromptChars:     int64(job.PromptChars),
		CompletionChars: res.written,
		Outcome:         res.outcome,
		DurationMS:      elapsed.Milliseconds(),
	})

	if res.outcome == ledger.OutcomeFailedPostCommit {
		panic(http.ErrAbortHandler)
	}
}

func (p *Pipeline) serveSync(ctx context.Context, w http.ResponseWriter, id string, job Job) result {
	body, err := stream.Collect(ctx, job.Producer, stream.WithLogger(p.logger), stream.WithID(id))
	if err != nil {
		return p.failBeforeCommit(w, id, job, err)
	}
	if job.Kind == envelope.KindHTML {
		body = envelope.Wrap(job.Document, body)
	}
	envelope.SetHeaders(w.Header(), job.Kind, false)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(body)
	if err != nil {
		p.debugf("stream %s (%s): write: %v", id, job.Endpoint, err)
		return result{outcome: ledger.OutcomeCancelled, written: int64(n)}
	}
	return result{outcome: ledger.OutcomeCompleted, written: int64(n)}
}

func (p *Pipeline) serveIncremental(ctx context.Context, w http.ResponseWriter, id string, job Job, start time.Time) result {
	b := stream.New(
		stream.WithEnvelope(envelope.For(job.Kind, job.Document)),
		stream.WithLogger(p.logger),
		stream.WithID(id),
		stream.WithOnFirstByte(func() { p.metrics.RecordFirstByte(job.Endpoint, time.Since(start)) }),
	)
	rd, err := b.Open(ctx, job.Producer)
	if err != nil {
		return p.failBeforeCommit(w, id, job, err)
	}
	defer rd.Close()

	// Nothing is committed until the first item arrives.
	chunk, err := rd.Next(ctx)
	if err != nil && err != io.EOF {
		return p.failBeforeCommit(w, id, job, err)
	}

	envelope.SetHeaders(w.Header(), job.Kind, true)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if err == io.EOF {
		if flusher != nil {
			flusher.Flush()
		}
		return result{outcome: ledger.OutcomeCompleted}
	}

	var written int64
	for {
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			b.Cancel()
			p.debugf("stream %s (%s): client write failed: %v", id, job.Endpoint, werr)
			return result{outcome: ledger.OutcomeCancelled, written: written}
		}
		if flusher != nil {
			flusher.Flush()
		}

		chunk, err = rd.Next(ctx)
		switch {
		case err == nil:
			continue
		case err == io.EOF:
			return result{outcome: ledger.OutcomeCompleted, written: written}
		}

		switch p.translator.Translate(err) {
		case Quiet:
			p.debugf("stream %s (%s): cancelled after %d bytes", id, job.Endpoint, written)
			return result{outcome: ledger.OutcomeCancelled, written: written}
		default:
			p.translator.LogAbort(id, job.Endpoint, err)
			if marker := p.translator.MarkerBytes(job.Kind); marker != nil {
				if n, werr := w.Write(marker); werr == nil {
					written += int64(n)
					if flusher != nil {
						flusher.Flush()
					}
				}
			}
			return result{outcome: ledger.OutcomeFailedPostCommit, written: written}
		}
	}
}

// failBeforeCommit answers a failure observed while nothing has been written.
func (p *Pipeline) failBeforeCommit(w http.ResponseWriter, id string, job Job, err error) result {
	if p.translator.Translate(err) == Quiet {
		p.debugf("stream %s (%s): cancelled before first byte", id, job.Endpoint)
		return result{outcome: ledger.OutcomeCancelled}
	}
	p.translator.RespondServerError(w, id, job.Endpoint, err)
	return result{outcome: ledger.OutcomeFailedPreCommit}
}

func (p *Pipeline) record(ctx context.Context, entry ledger.Entry) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Printf("stream %s (%s): ledger record: %v", entry.RequestID, entry.Endpoint, err)
	}
}

func (p *Pipeline) debugf(format string, args ...any) {
	if p.debug {
		p.logger.Printf("[DEBUG] "+format, args...)
	}
}

// RequestID returns the id assigned by the request-id middleware, the
// client-supplied X-Request-ID, or a fresh UUID.
func RequestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get(middleware.RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tokligence/boltstream/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes so that recording
// a finished stream never delays the response path.
// Entries may be lost if the process crashes before flushing.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	closeOnce     sync.Once
	logger        *log.Logger

	mu      sync.Mutex
	dropped int64
}

// Config configures the async ledger behavior.
type Config struct {
	BatchSize     int           // Maximum entries per batch (default: 100)
	FlushInterval time.Duration // Maximum time between flushes (default: 1s)
	ChannelBuffer int           // Queue capacity before entries are dropped (default: 10000)
	NumWorkers    int           // Parallel batch writers (default: 1)
	Logger        *log.Logger   // Optional logger for diagnostics
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 1 * time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go s.batchWriter(i)
	}

	if s.logger != nil {
		s.logger.Printf("[async-ledger] started %d worker(s), batch_size=%d, flush_interval=%v, buffer=%d",
			cfg.NumWorkers, cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer)
	}

	return s
}

func (s *Store) batchWriter(workerID int) {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		written := 0
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil {
				if s.logger != nil {
					s.logger.Printf("[async-ledger] worker-%d ERROR writing entry %s: %v", workerID, entry.RequestID, err)
				}
				continue
			}
			written++
		}
		if s.logger != nil && written != len(batch) {
			s.logger.Printf("[async-ledger] worker-%d flushed %d/%d entries", workerID, written, len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// Drain what is already queued; Record refuses new entries once stopped.
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues an entry for asynchronous writing. It never blocks: when the
// queue is full or the store is closing the entry is dropped.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	select {
	case <-s.stopChan:
		s.drop()
		return nil
	default:
	}
	select {
	case s.entryChan <- entry:
	default:
		s.drop()
		if s.logger != nil {
			s.logger.Printf("[async-ledger] WARNING: channel full, dropping entry %s", entry.RequestID)
		}
	}
	return nil
}

func (s *Store) drop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// Dropped returns how many entries were discarded.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Summary delegates to the underlying store (blocking operation).
func (s *Store) Summary(ctx context.Context, endpoint string) (ledger.Summary, error) {
	return s.underlying.Summary(ctx, endpoint)
}

// ListRecent delegates to the underlying store (blocking operation).
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, limit)
}

// Ping checks the underlying store when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.underlying.(ledger.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close flushes remaining entries and closes the underlying store.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.underlying.Close()
	})
	return err
}

package trust

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/model"
)

var ErrWriterClosed = errors.New("trust writer closed")

const writeTimeout = 10 * time.Second

// Writer wraps a Store so Save returns without touching disk. A background goroutine
// writes the newest relation; saves queued while a write is in flight collapse into one.
type Writer struct {
	store Store
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[model.ActorID][]model.ActorID
	dirty   bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	writes atomic.Int64
}

func NewWriter(store Store, log zerolog.Logger) *Writer {
	w := &Writer{
		store: store,
		log:   log,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
	return w
}

func (w *Writer) Load(ctx context.Context) (map[model.ActorID][]model.ActorID, error) {
	return w.store.Load(ctx)
}

// Save queues edges and returns. edges must not be modified afterwards.
func (w *Writer) Save(_ context.Context, edges map[model.ActorID][]model.ActorID) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	w.mu.Lock()
	w.pending, w.dirty = edges, true
	w.mu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default:
	}
	return nil
}

// Writes returns how many writes reached the wrapped store.
func (w *Writer) Writes() int64 { return w.writes.Load() }

// Close writes whatever is still queued and stops the goroutine. It does not close the
// wrapped store.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.done)
		w.wg.Wait()
	})
	return nil
}

func (w *Writer) loop() {
	for {
		select {
		case <-w.kick:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	edges, dirty := w.pending, w.dirty
	w.pending, w.dirty = nil, false
	w.mu.Unlock()
	if !dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	w.writes.Add(1)
	if err := w.store.Save(ctx, edges); err != nil {
		w.log.Error().Err(err).Int("truster_count", len(edges)).Msg("trust write failed")
	}
}

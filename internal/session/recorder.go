package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/wolfsheep/internal/store"
)

const storeTimeout = 2 * time.Second

// recorder writes one session's record on its own goroutine so the session
// lock is never held across store I/O. Only the latest change is kept; a
// save overtaken by a newer save or a delete is never written.
type recorder struct {
	st  store.Store
	id  string
	log zerolog.Logger

	mu      sync.Mutex
	pending *write
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type write struct {
	rec    store.Record
	delete bool
}

// newRecorder returns nil when st is nil; a nil recorder drops every write.
func newRecorder(st store.Store, id string, log zerolog.Logger) *recorder {
	if st == nil {
		return nil
	}
	r := &recorder{
		st:   st,
		id:   id,
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *recorder) save(rec store.Record) { r.queue(&write{rec: rec}) }

func (r *recorder) forget() { r.queue(&write{delete: true}) }

func (r *recorder) queue(w *write) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.pending = w
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// close asks the writer to flush and exit without waiting for it.
func (r *recorder) close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

// wait blocks until the writer has flushed and exited.
func (r *recorder) wait() {
	if r != nil {
		<-r.done
	}
}

func (r *recorder) run() {
	defer close(r.done)
	for {
		select {
		case <-r.wake:
			r.flush()
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *recorder) flush() {
	r.mu.Lock()
	w := r.pending
	r.pending = nil
	r.mu.Unlock()
	if w == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if w.delete {
		if err := r.st.Delete(ctx, r.id); err != nil {
			r.log.Warn().Err(err).Msg("delete session record")
		}
		return
	}
	if err := r.st.Save(ctx, w.rec); err != nil {
		r.log.Warn().Err(err).Int("moveCount", w.rec.Snapshot.MoveCount).Msg("persist session")
	}
}

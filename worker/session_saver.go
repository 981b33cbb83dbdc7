package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/metrics"
	"github.com/zlnvch/easel/store"
)

type SessionSave struct {
	CanvasId    string
	SessionData []byte
}

type pendingSession struct {
	data []byte
	due  time.Time
}

// SessionSaver collapses bursts of session autosaves per canvas into one
// write after a quiet period. A newer save replaces the pending data and
// restarts that canvas's timer.
type SessionSaver struct {
	SaveCh   chan SessionSave
	store    store.EaselStore
	metrics  metrics.Recorder
	debounce time.Duration

	mu       sync.RWMutex
	draining bool
}

func NewSessionSaver(easelStore store.EaselStore, debounce time.Duration, recorder metrics.Recorder) *SessionSaver {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &SessionSaver{
		SaveCh:   make(chan SessionSave, 1024), // buffer to absorb bursts
		store:    easelStore,
		metrics:  recorder,
		debounce: debounce,
	}
}

// Enqueue never blocks. It reports false when the buffer is full or Run
// has started its shutdown flush.
func (s *SessionSaver) Enqueue(save SessionSave) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draining {
		return false
	}
	select {
	case s.SaveCh <- save:
		return true
	default:
		return false
	}
}

func (s *SessionSaver) Run(shutdownCtx context.Context) {
	tick := s.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]pendingSession)

	flush := func(all bool) {
		now := time.Now()
		saved := 0
		for canvasId, p := range pending {
			if !all && now.Before(p.due) {
				continue
			}
			delete(pending, canvasId)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.store.UpdateSessionData(ctx, canvasId, p.data)
			cancel()
			if err != nil {
				if !errors.Is(err, store.ErrItemNotFound) {
					logutils.Log.WithError(err).WithField("canvasId", canvasId).Error("session save failed")
				}
				continue
			}
			saved++
		}
		if saved > 0 {
			s.metrics.RecordSessionSaves(saved)
		}
	}

	for {
		select {
		case save := <-s.SaveCh:
			pending[save.CanvasId] = pendingSession{data: save.SessionData, due: time.Now().Add(s.debounce)}

		case <-ticker.C:
			flush(false)

		case <-shutdownCtx.Done():
			s.mu.Lock()
			s.draining = true
			s.mu.Unlock()
		drain:
			for {
				select {
				case save := <-s.SaveCh:
					pending[save.CanvasId] = pendingSession{data: save.SessionData}
				default:
					break drain
				}
			}
			flush(true)
			return
		}
	}
}

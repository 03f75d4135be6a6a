package worker

import (
	"sync"
	"time"

	"harvesttutor/internal/models"
)

// sessionState is everything one UI session owns: its selection, the active image and
// the snapshot of its latest cycle. generation changes whenever the inputs change, so a
// cycle started before the change can recognise its updates as stale.
type sessionState struct {
	mu         sync.RWMutex
	id         string
	crop       string
	language   string
	image      *models.UploadedImage
	snapshot   models.Snapshot
	generation uint64
	lastSeen   time.Time
}

func newSessionState(id, crop, language string, now time.Time) *sessionState {
	s := &sessionState{id: id, crop: crop, language: language, lastSeen: now}
	s.snapshot = models.NewSnapshot(s.requestLocked())
	return s
}

func (s *sessionState) requestLocked() models.DiagnosisRequest {
	return models.DiagnosisRequest{Crop: s.crop, Language: s.language, Image: s.image}
}

// resetLocked drops any results and invalidates a running cycle.
func (s *sessionState) resetLocked() {
	s.generation++
	s.snapshot = models.NewSnapshot(s.requestLocked())
}

func (s *sessionState) get(now time.Time) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	return s.snapshot.Clone()
}

func (s *sessionState) setSelection(crop, language string, now time.Time) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crop, s.language = crop, language
	s.lastSeen = now
	s.resetLocked()
	return s.snapshot.Clone()
}

func (s *sessionState) setImage(img *models.UploadedImage, now time.Time) models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.lastSeen = now
	s.resetLocked()
	return s.snapshot.Clone()
}

func (s *sessionState) imageData() *models.UploadedImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.image
}

// apply stores snap if it belongs to the current generation.
func (s *sessionState) apply(gen uint64, snap models.Snapshot, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.snapshot = snap
	s.lastSeen = now
	return true
}

func (s *sessionState) invalidate() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

func (s *sessionState) idleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.snapshot.State.Busy() && s.lastSeen.Before(cutoff)
}

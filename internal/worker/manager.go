package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"harvesttutor/internal/diagnosis"
	"harvesttutor/internal/models"
)

const (
	DefaultMaxConcurrent = 8
	DefaultSessionTTL    = 30 * time.Minute

	// updateBuffer is larger than the number of transitions in one cycle, so the
	// cycle never blocks on a caller that stopped listening.
	updateBuffer = 8
)

// Runner executes one diagnosis cycle. *diagnosis.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req models.DiagnosisRequest, observe diagnosis.Observer) (models.Snapshot, error)
}

type Config struct {
	MaxConcurrent int
	SessionTTL    time.Duration
}

// Manager owns the in-memory sessions and runs their analysis cycles.
type Manager struct {
	runner  Runner
	catalog *models.Catalog
	sem     *semaphore.Weighted
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func NewManager(runner Runner, catalog *models.Catalog, cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if catalog == nil {
		catalog = models.NewCatalog(nil)
	}
	return &Manager{
		runner:   runner,
		catalog:  catalog,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ttl:      cfg.SessionTTL,
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}
}

// Create opens a session. Empty crop or language select the defaults.
func (m *Manager) Create(crop, language string) (string, models.Snapshot, error) {
	crop, language, err := m.validateSelection(crop, language)
	if err != nil {
		return "", models.Snapshot{}, err
	}
	id := uuid.NewString()
	state := newSessionState(id, crop, language, m.now())

	m.mu.Lock()
	m.sessions[id] = state
	m.mu.Unlock()

	debugLog("session %s created crop=%s language=%s", id, crop, language)
	return id, state.get(m.now()), nil
}

func (m *Manager) Snapshot(id string) (models.Snapshot, error) {
	state, err := m.getSession(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	return state.get(m.now()), nil
}

// Select changes crop and language. Results are dropped and a running cycle
// no longer updates the session.
func (m *Manager) Select(id, crop, language string) (models.Snapshot, error) {
	state, err := m.getSession(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	crop, language, err = m.validateSelection(crop, language)
	if err != nil {
		return models.Snapshot{}, err
	}
	return state.setSelection(crop, language, m.now()), nil
}

// SetImage makes img the active image and resets the session to idle.
func (m *Manager) SetImage(id string, img *models.UploadedImage) (models.Snapshot, error) {
	state, err := m.getSession(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	return state.setImage(img, m.now()), nil
}

// ClearImage removes the active image and resets the session to idle.
func (m *Manager) ClearImage(id string) (models.Snapshot, error) {
	return m.SetImage(id, nil)
}

// Image returns the active image, nil when none is set.
func (m *Manager) Image(id string) (*models.UploadedImage, error) {
	state, err := m.getSession(id)
	if err != nil {
		return nil, err
	}
	return state.imageData(), nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	state.invalidate()
	debugLog("session %s deleted", id)
	return nil
}

// Analyze runs one cycle for the session. observe, when set, receives every snapshot
// the session publishes during the cycle. The cycle is detached from ctx: if ctx ends
// first Analyze returns ctx.Err() and the cycle still runs to completion.
func (m *Manager) Analyze(ctx context.Context, id string, observe func(models.Snapshot)) (models.Snapshot, error) {
	state, err := m.getSession(id)
	if err != nil {
		return models.Snapshot{}, err
	}

	state.mu.Lock()
	if state.snapshot.State.Busy() {
		state.mu.Unlock()
		return models.Snapshot{}, ErrAnalysisInFlight
	}
	if state.image == nil {
		state.mu.Unlock()
		return models.Snapshot{}, diagnosis.ErrNoImage
	}
	if !m.sem.TryAcquire(1) {
		state.mu.Unlock()
		return models.Snapshot{}, ErrServerBusy
	}
	req := state.requestLocked()
	state.resetLocked()
	state.snapshot.State = models.StatePredicting
	gen := state.generation
	state.lastSeen = m.now()
	state.mu.Unlock()

	updates := make(chan models.Snapshot, updateBuffer)
	done := make(chan models.Snapshot, 1)
	cycleCtx := context.WithoutCancel(ctx)

	go func() {
		defer m.sem.Release(1)
		final, err := m.runner.Run(cycleCtx, req, func(snap models.Snapshot) {
			if state.apply(gen, snap, m.now()) {
				updates <- snap
			}
		})
		if err != nil {
			log.WithField("session", id).Printf("analysis did not start: %v", err)
			final = models.NewSnapshot(req)
			state.apply(gen, final, m.now())
		}
		debugLog("session %s cycle finished in state %s", id, final.State)
		done <- final
	}()

	for {
		select {
		case snap := <-updates:
			if observe != nil {
				observe(snap)
			}
		case final := <-done:
			for {
				select {
				case snap := <-updates:
					if observe != nil {
						observe(snap)
					}
				default:
					return m.result(state, gen, final), nil
				}
			}
		case <-ctx.Done():
			return models.Snapshot{}, ctx.Err()
		}
	}
}

// result returns the cycle's final snapshot, or the session's current one when the
// cycle was superseded.
func (m *Manager) result(state *sessionState, gen uint64, final models.Snapshot) models.Snapshot {
	state.mu.RLock()
	defer state.mu.RUnlock()
	if state.generation != gen {
		return state.snapshot.Clone()
	}
	return final.Clone()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) getSession(id string) (*sessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (m *Manager) validateSelection(crop, language string) (string, string, error) {
	if crop == "" {
		crop = models.CropTomato
	}
	if language == "" {
		language = models.DefaultLanguage
	}
	if !m.catalog.CropSupported(crop) {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedCrop, crop)
	}
	if !m.catalog.LanguageSupported(language) {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return crop, language, nil
}

package training

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cragclub/backend/internal/telemetry/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=manager_mocks_test.go -package=training

type sessionsRepo interface {
	Save(ctx context.Context, userID string, session Session) error
	Delete(ctx context.Context, userID, sessionID string) error
	List(ctx context.Context, userID string) ([]Session, error)
}

var (
	ErrSessionAlreadyOpen = errors.New("a session is already open")
	ErrNoOpenSession      = errors.New("no open session")
	ErrSessionNotFound    = errors.New("session not found")
)

const (
	persistQueueSize     = 64
	persistTimeout       = 10 * time.Second
	persistRetryInterval = 30 * time.Second
	maxPersistAttempts   = 3
)

type persistJobKind int

const (
	persistJobSave persistJobKind = iota
	persistJobDelete
)

type persistJob struct {
	kind      persistJobKind
	session   Session
	sessionID string
	attempts  int
}

// Manager owns one user's training state: the single open session slot and
// the history of closed sessions. In-memory state is the source of truth,
// every state change is persisted in the background and a persistence
// failure never rolls the state back.
type Manager struct {
	userID         string
	repo           sessionsRepo
	metricsManager *metrics.Manager

	mutex   sync.Mutex
	open    *Session
	history []Session

	persistJobs chan persistJob
	done        chan struct{}
	wg          sync.WaitGroup

	// injectable for unit testing
	nowFunc func() time.Time
}

// NewManager restores the user's state from previously persisted sessions
// and starts the background persistence worker. Call Close when done.
func NewManager(
	userID string,
	sessions []Session,
	repo sessionsRepo,
	metricsManager *metrics.Manager,
) *Manager {
	m := &Manager{
		userID:         userID,
		repo:           repo,
		metricsManager: metricsManager,
		persistJobs:    make(chan persistJob, persistQueueSize),
		done:           make(chan struct{}),
		nowFunc:        time.Now,
	}

	for i := range sessions {
		s := sessions[i]
		if !s.IsOpen() {
			m.history = append(m.history, s)
			continue
		}
		if m.open != nil {
			// should not happen, but tolerate stale persisted state
			log.Warnf("user %s has multiple open sessions, keeping the latest", userID)
			if s.StartTime.Before(m.open.StartTime) {
				continue
			}
		}
		m.open = &s
	}

	m.wg.Add(1)
	go m.persistWorker()

	return m
}

// Close stops the background persistence worker, draining queued jobs first.
func (m *Manager) Close() {
	close(m.done)
	m.wg.Wait()
}

func (m *Manager) UserID() string {
	return m.userID
}

func (m *Manager) HasActiveSession() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.open != nil
}

// OpenSession returns a copy of the currently open session, or nil.
func (m *Manager) OpenSession() *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.open == nil {
		return nil
	}
	s := m.open.clone()
	return &s
}

// Sessions returns a copy of the closed session history, oldest first.
func (m *Manager) Sessions() []Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sessions := make([]Session, 0, len(m.history))
	for i := range m.history {
		sessions = append(sessions, m.history[i].clone())
	}
	return sessions
}

// StartSession opens a new session. At most one session may be open at a
// time, a second start is rejected with ErrSessionAlreadyOpen.
func (m *Manager) StartSession() (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.open != nil {
		return nil, ErrSessionAlreadyOpen
	}

	m.open = &Session{
		ID:        uuid.NewString(),
		StartTime: m.nowFunc(),
		Climbs:    []Climb{},
	}

	m.enqueuePersist(persistJob{kind: persistJobSave, session: m.open.clone()})
	m.metricsManager.CounterSessionsStarted.Inc()

	s := m.open.clone()
	return &s, nil
}

// AddClimb appends a climb to the open session and returns it. With no open
// session this is a no-op and returns nil.
func (m *Manager) AddClimb(grade string, durationMinutes float64, numberOfTakes int) *Climb {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.open == nil {
		log.Tracef("user %s: add climb ignored, no open session", m.userID)
		return nil
	}

	climb := Climb{
		ID:              uuid.NewString(),
		Grade:           grade,
		DurationMinutes: durationMinutes,
		NumberOfTakes:   numberOfTakes,
		CreatedAt:       m.nowFunc(),
	}
	m.open.Climbs = append(m.open.Climbs, climb)

	m.enqueuePersist(persistJob{kind: persistJobSave, session: m.open.clone()})

	return &climb
}

// ClimbUpdate names the climb fields that may change while a session is
// open. Nil fields are left untouched.
type ClimbUpdate struct {
	Grade           *string  `json:"grade,omitempty"`
	DurationMinutes *float64 `json:"durationMinutes,omitempty"`
	NumberOfTakes   *int     `json:"numberOfTakes,omitempty"`
}

// UpdateClimb replaces the named fields of an existing climb in the open
// session. An unknown climb id, or no open session, is a no-op.
func (m *Manager) UpdateClimb(climbID string, update ClimbUpdate) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.open == nil {
		log.Tracef("user %s: update climb ignored, no open session", m.userID)
		return false
	}

	for i := range m.open.Climbs {
		if m.open.Climbs[i].ID != climbID {
			continue
		}
		if update.Grade != nil {
			m.open.Climbs[i].Grade = *update.Grade
		}
		if update.DurationMinutes != nil {
			m.open.Climbs[i].DurationMinutes = *update.DurationMinutes
		}
		if update.NumberOfTakes != nil {
			m.open.Climbs[i].NumberOfTakes = *update.NumberOfTakes
		}
		m.enqueuePersist(persistJob{kind: persistJobSave, session: m.open.clone()})
		return true
	}

	return false
}

// RemoveClimb removes the climb by identity from the open session. An
// unknown climb id, or no open session, is a no-op.
func (m *Manager) RemoveClimb(climbID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.open == nil {
		log.Tracef("user %s: remove climb ignored, no open session", m.userID)
		return false
	}

	for i := range m.open.Climbs {
		if m.open.Climbs[i].ID != climbID {
			continue
		}
		m.open.Climbs = append(m.open.Climbs[:i], m.open.Climbs[i+1:]...)
		m.enqueuePersist(persistJob{kind: persistJobSave, session: m.open.clone()})
		return true
	}

	return false
}

// EndSession closes the open session: stamps the end time, scores the
// session against the rolling baseline of the history plus the session
// itself, stores the SII, and appends the session to history. The stored
// SII is final, it is never recomputed later.
func (m *Manager) EndSession(workoutMetrics *WorkoutMetrics, recoveryFeeling *int) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.open == nil {
		return nil, ErrNoOpenSession
	}

	s := m.open
	now := m.nowFunc()
	s.EndTime = &now
	s.WorkoutMetrics = workoutMetrics
	s.RecoveryFeeling = recoveryFeeling

	scored := make([]Session, 0, len(m.history)+1)
	scored = append(scored, m.history...)
	scored = append(scored, *s)
	baseline := CalculateBaseline(scored, now, *s)
	intensity := ComputeIntensity(*s, baseline)
	s.SII = &intensity.SII

	m.history = append(m.history, s.clone())
	m.open = nil

	m.enqueuePersist(persistJob{kind: persistJobSave, session: s.clone()})
	m.metricsManager.CounterSessionsClosed.Inc()
	m.metricsManager.HistogramSessionSII.Observe(intensity.SII)

	log.Debugf(
		"user %s: session %s closed, sii %.3f (%s intensity)",
		m.userID, s.ID, intensity.SII, IntensityLabel(intensity.SII),
	)

	closed := s.clone()
	return &closed, nil
}

// DeleteSession removes a session permanently from history. The cached SII
// values of the remaining sessions stay as they are, an SII is a
// point-in-time measurement, not a retroactively adjusted ledger entry.
func (m *Manager) DeleteSession(sessionID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := range m.history {
		if m.history[i].ID != sessionID {
			continue
		}
		m.history = append(m.history[:i], m.history[i+1:]...)
		m.enqueuePersist(persistJob{kind: persistJobDelete, sessionID: sessionID})
		m.metricsManager.CounterSessionsDeleted.Inc()
		return nil
	}

	return ErrSessionNotFound
}

// Recommendation maps the most recently closed session's SII and the
// history size into a rest-day recommendation.
func (m *Manager) Recommendation() RecoveryRecommendation {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var sii *float64
	if len(m.history) > 0 {
		sii = m.history[len(m.history)-1].SII
	}
	return RecommendRecovery(sii, len(m.history))
}

func (m *Manager) enqueuePersist(job persistJob) {
	select {
	case m.persistJobs <- job:
	default:
		log.Errorf("user %s: persist queue full, dropping job for session", m.userID)
		m.metricsManager.CounterPersistFailures.Inc()
	}
}

func (m *Manager) persistWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(persistRetryInterval)
	defer ticker.Stop()

	var retryQueue []persistJob
	handle := func(job persistJob) {
		if err := m.runPersistJob(job); err != nil {
			job.attempts++
			if job.attempts < maxPersistAttempts {
				retryQueue = append(retryQueue, job)
			} else {
				log.Errorf("user %s: giving up persist job after %d attempts: %s", m.userID, job.attempts, err)
			}
		}
	}

	for {
		select {
		case job := <-m.persistJobs:
			handle(job)
		case <-ticker.C:
			pending := retryQueue
			retryQueue = nil
			for _, job := range pending {
				handle(job)
			}
		case <-m.done:
			// drain the queue and the parked retries, one last attempt each
			for {
				select {
				case job := <-m.persistJobs:
					if err := m.runPersistJob(job); err != nil {
						log.Errorf("user %s: persist job failed during shutdown: %s", m.userID, err)
					}
				default:
					for _, job := range retryQueue {
						if err := m.runPersistJob(job); err != nil {
							log.Errorf("user %s: parked persist job failed during shutdown: %s", m.userID, err)
						}
					}
					return
				}
			}
		}
	}
}

func (m *Manager) runPersistJob(job persistJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	switch job.kind {
	case persistJobSave:
		err = m.repo.Save(ctx, m.userID, job.session)
	case persistJobDelete:
		err = m.repo.Delete(ctx, m.userID, job.sessionID)
	}

	if err != nil {
		m.metricsManager.CounterPersistFailures.Inc()
		log.Errorf("user %s: persist session: %s", m.userID, err)
	}

	return err
}

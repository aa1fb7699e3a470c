package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheguard/sheguard/server/location"
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/server/models"
)

const (
	DefaultUpdateInterval = 60 * time.Second
	DefaultSampleInterval = 10 * time.Second
	DefaultMinDistance    = 10.0 // meters
)

var (
	ErrNoUserSignedIn      = errors.New("no user signed in")
	ErrNoSelectedContacts  = errors.New("no selected emergency contacts")
	ErrSessionNotFound     = errors.New("no active tracking session")
	ErrSessionAlreadyLive  = errors.New("tracking session already active")
	ErrInvalidSessionOwner = errors.New("session does not belong to user")
)

var logg = logger.NewLogger()

// Messenger sends one SMS to one recipient.
type Messenger interface {
	SendMessage(to, message string) error
}

// Manager runs live location sharing sessions. At most one session is
// active per user; starting is rejected while one is live, and
// stopping is idempotent with the "safely ended" notice sent exactly
// once.
type Manager struct {
	messenger      Messenger
	locations      *location.Provider
	updateInterval time.Duration
	sampleInterval time.Duration
	minDistance    float64

	mu       sync.Mutex
	sessions map[string]*liveSession // ownerUID -> active session
}

type liveSession struct {
	id         string
	ownerUID   string
	cancel     context.CancelFunc
	autoStop   *time.Timer
	lastSentAt time.Time
	stopped    bool
}

func NewManager(messenger Messenger, locations *location.Provider, updateInterval, sampleInterval time.Duration, minDistance float64) *Manager {
	if updateInterval <= 0 {
		updateInterval = DefaultUpdateInterval
	}
	if sampleInterval <= 0 {
		sampleInterval = DefaultSampleInterval
	}
	if minDistance <= 0 {
		minDistance = DefaultMinDistance
	}

	return &Manager{
		messenger:      messenger,
		locations:      locations,
		updateInterval: updateInterval,
		sampleInterval: sampleInterval,
		minDistance:    minDistance,
		sessions:       map[string]*liveSession{},
	}
}

// StartSession begins sharing the user's live location for 'duration'.
// Every selected contact gets the start notice immediately, carrying
// 'message' when the user supplied one; periodic updates then go to
// the first selected contact only, throttled to at most one per update
// interval. The session stops itself when the duration elapses.
func (m *Manager) StartSession(userID interface{}, ownerUID string, duration time.Duration, message string) (string, error) {
	if ownerUID == "" {
		return "", ErrNoUserSignedIn
	}

	contacts, err := models.SelectedContacts(userID)
	if err != nil {
		return "", fmt.Errorf("StartSession: %v", err)
	}
	if len(contacts) == 0 {
		return "", ErrNoSelectedContacts
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The session is published fully stoppable: cancel is set before
	// any other goroutine can see it.
	m.mu.Lock()
	if _, live := m.sessions[ownerUID]; live {
		m.mu.Unlock()
		cancel()
		return "", ErrSessionAlreadyLive
	}

	session := &liveSession{
		id:       uuid.NewString(),
		ownerUID: ownerUID,
		cancel:   cancel,
	}
	m.sessions[ownerUID] = session
	m.mu.Unlock()

	record := &models.TrackingSession{
		SessionID:       session.id,
		OwnerUID:        ownerUID,
		StartTime:       time.Now().Unix(),
		DurationSeconds: int64(duration / time.Second),
		IsActive:        true,
	}
	if err := models.CreateTrackingSession(record); err != nil {
		m.removeSession(ownerUID)
		cancel()
		return "", fmt.Errorf("StartSession: %v", err)
	}

	m.notifyAll(contacts, startMessage(duration, message))

	// A stop may have won the race while the start notices were going
	// out; if so the record is closed out here and sampling never
	// begins.
	m.mu.Lock()
	if session.stopped {
		m.mu.Unlock()

		if err := record.MarkStopped(); err != nil {
			logg.Errorf("could not mark tracking session %v as stopped: %v", session.id, err)
		}

		return session.id, nil
	}
	session.autoStop = time.AfterFunc(duration, func() {
		if err := m.StopSession(userID, ownerUID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			logg.Errorf("auto-stop of tracking session %v failed: %v", session.id, err)
		}
	})
	m.mu.Unlock()

	go m.run(ctx, session, contacts[0])

	logg.Infof("started tracking session %v for user %v (duration: %v)", session.id, ownerUID, duration)

	return session.id, nil
}

// StopSession ends the user's live session. Calling it again after
// the session ended (or was auto-stopped) returns ErrSessionNotFound
// and sends nothing, so contacts see the "safely ended" notice
// exactly once.
func (m *Manager) StopSession(userID interface{}, ownerUID string) error {
	m.mu.Lock()
	session, live := m.sessions[ownerUID]
	if !live || session.stopped {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	session.stopped = true
	delete(m.sessions, ownerUID)
	cancel, autoStop := session.cancel, session.autoStop
	m.mu.Unlock()

	cancel()
	if autoStop != nil {
		autoStop.Stop()
	}

	record := models.TrackingSession{SessionID: session.id}
	if err := record.MarkStopped(); err != nil {
		logg.Errorf("could not mark tracking session %v as stopped: %v", session.id, err)
	}

	contacts, err := models.SelectedContacts(userID)
	if err != nil {
		return fmt.Errorf("StopSession: %v", err)
	}
	m.notifyAll(contacts, endMessage())

	logg.Infof("stopped tracking session %v for user %v", session.id, ownerUID)

	return nil
}

// StopSessionQuietly tears down the user's live session without
// notifying contacts, for account deletion where the "safely ended"
// notice would be misleading.
func (m *Manager) StopSessionQuietly(ownerUID string) {
	m.mu.Lock()
	session, live := m.sessions[ownerUID]
	if !live || session.stopped {
		m.mu.Unlock()
		return
	}
	session.stopped = true
	delete(m.sessions, ownerUID)
	cancel, autoStop := session.cancel, session.autoStop
	m.mu.Unlock()

	cancel()
	if autoStop != nil {
		autoStop.Stop()
	}

	record := models.TrackingSession{SessionID: session.id}
	if err := record.MarkStopped(); err != nil {
		logg.Errorf("could not mark tracking session %v as stopped: %v", session.id, err)
	}
}

// IsActive reports whether the user has a live session.
func (m *Manager) IsActive(ownerUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, live := m.sessions[ownerUID]

	return live
}

// StopAll ends every live session, for server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	owners := make([]string, 0, len(m.sessions))
	for owner := range m.sessions {
		owners = append(owners, owner)
	}
	m.mu.Unlock()

	for _, owner := range owners {
		user, err := models.FindUserBy("id", owner)
		if err != nil {
			logg.Errorf("could not load user %v while stopping sessions: %v", owner, err)
			continue
		}

		if err := m.StopSession(user.ID, owner); err != nil && !errors.Is(err, ErrSessionNotFound) {
			logg.Errorf("could not stop tracking session for user %v: %v", owner, err)
		}
	}
}

// ReapExpired stops sessions whose duration elapsed while their
// auto-stop timer was lost, e.g. across a server restart. Meant to be
// run periodically.
func ReapExpired(stop func(sessionID, ownerUID string) error) error {
	expired, err := models.FetchExpiredActiveSessions(time.Now())
	if err != nil {
		return fmt.Errorf("ReapExpired: %v", err)
	}

	for _, session := range expired {
		if err := stop(session.SessionID, session.OwnerUID); err != nil {
			logg.Errorf("could not reap tracking session %v: %v", session.SessionID, err)
		}
	}

	return nil
}

// ReapOrphaned marks the given expired session record inactive when
// no in-memory session exists for it anymore.
func (m *Manager) ReapOrphaned(sessionID, ownerUID string) error {
	if m.IsActive(ownerUID) {
		// The live session's own timer will handle it
		return nil
	}

	record := models.TrackingSession{SessionID: sessionID}

	return record.MarkStopped()
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// run consumes location samples until the session is cancelled.
// Samples that arrive after stop are discarded with the subscription.
func (m *Manager) run(ctx context.Context, session *liveSession, firstContact models.Contact) {
	fixes, err := m.locations.Subscribe(ctx, m.sampleInterval, m.minDistance)
	if err != nil {
		logg.Errorf("could not subscribe to location updates for session %v: %v", session.id, err)
		return
	}

	for fix := range fixes {
		if ctx.Err() != nil {
			return
		}

		record := models.TrackingSession{SessionID: session.id}
		if err := record.AppendFix(models.TrackingFix{
			Latitude:   fix.Latitude,
			Longitude:  fix.Longitude,
			RecordedAt: fix.Timestamp.Unix(),
		}); err != nil {
			logg.Errorf("could not persist location fix for session %v: %v", session.id, err)
		}

		m.maybeSendUpdate(session, firstContact, fix)
	}
}

func (m *Manager) maybeSendUpdate(session *liveSession, contact models.Contact, fix location.Fix) {
	now := time.Now()

	m.mu.Lock()
	if session.stopped || now.Sub(session.lastSentAt) < m.updateInterval {
		m.mu.Unlock()
		return
	}
	session.lastSentAt = now
	m.mu.Unlock()

	msg := updateMessage(fix)
	if err := m.messenger.SendMessage(contact.FormattedPhoneNumber(), msg); err != nil {
		logg.Errorf("could not send location update for session %v: %v", session.id, err)
		return
	}

	record := models.TrackingSession{SessionID: session.id}
	if err := record.UpdateLastSentTime(now.Unix()); err != nil {
		logg.Errorf("could not record last sent time for session %v: %v", session.id, err)
	}
}

func (m *Manager) notifyAll(contacts []models.Contact, message string) {
	for _, contact := range contacts {
		if err := m.messenger.SendMessage(contact.FormattedPhoneNumber(), message); err != nil {
			// One unreachable contact must not block the rest
			logg.Errorf("could not notify %v: %v", contact.Name, err)
		}
	}
}

func (m *Manager) removeSession(ownerUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, ownerUID)
}

func startMessage(duration time.Duration, message string) string {
	text := fmt.Sprintf("📍 I've started sharing my live location with you for the next %v minutes. "+
		"You'll receive periodic updates with my position.", int(duration.Minutes()))
	if message != "" {
		text += fmt.Sprintf("\n\"%v\"", message)
	}

	return text
}

func updateMessage(fix location.Fix) string {
	return fmt.Sprintf("📍 Location update: %v\nTime: %v",
		location.MapsLink(fix), fix.Timestamp.Format("2006-01-02 15:04:05"))
}

func endMessage() string {
	return "✅ I've safely ended my live location sharing session. Thank you for watching over me."
}

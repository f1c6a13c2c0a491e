// Package storetest provides in-memory implementations of the store contracts for tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// ErrDuplicate mirrors a unique index violation.
var ErrDuplicate = errors.New("duplicate key")

// Memory holds every collection behind one lock so cascades behave like the database.
type Memory struct {
	mu         sync.Mutex
	users      map[string]models.User
	bots       map[[2]string]models.Bot
	sessions   map[[2]string]models.Session
	events     map[[2]string]models.MeetingEvent
	recordings map[[2]string]models.Recording

	// Fail maps an operation name such as "sessions.Create" to the error it returns.
	Fail map[string]error
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		users:      map[string]models.User{},
		bots:       map[[2]string]models.Bot{},
		sessions:   map[[2]string]models.Session{},
		events:     map[[2]string]models.MeetingEvent{},
		recordings: map[[2]string]models.Recording{},
		Fail:       map[string]error{},
	}
}

func (m *Memory) fail(op string) error {
	return m.Fail[op]
}

// Users returns the user collection.
func (m *Memory) Users() store.Users { return users{m} }

// Bots returns the bot collection.
func (m *Memory) Bots() store.Bots { return bots{m} }

// Sessions returns the session collection.
func (m *Memory) Sessions() store.Sessions { return sessions{m} }

// Events returns the meeting event collection.
func (m *Memory) Events() store.Events { return events{m} }

// Recordings returns the recording collection.
func (m *Memory) Recordings() store.Recordings { return recordings{m} }

// Counts returns the number of rows per collection.
func (m *Memory) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"users":      len(m.users),
		"bots":       len(m.bots),
		"sessions":   len(m.sessions),
		"events":     len(m.events),
		"recordings": len(m.recordings),
	}
}

// AllSessions returns every session, ordered by session id.
func (m *Memory) AllSessions() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// AllRecordings returns every recording, ordered by recording id.
func (m *Memory) AllRecordings() []models.Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Recording, 0, len(m.recordings))
	for _, r := range m.recordings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordingID < out[j].RecordingID })
	return out
}

// AllEvents returns every meeting event, ordered by event id.
func (m *Memory) AllEvents() []models.MeetingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MeetingEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

type users struct{ m *Memory }

func (s users) Get(_ context.Context, userID string) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("users.Get"); err != nil {
		return nil, err
	}
	u, ok := s.m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s users) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("users.Create"); err != nil {
		return nil, err
	}
	if existing, ok := s.m.users[u.UserID]; ok {
		return &existing, nil
	}
	s.m.users[u.UserID] = *u
	out := *u
	return &out, nil
}

func (s users) UpdateLanguage(_ context.Context, userID, language string) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("users.UpdateLanguage"); err != nil {
		return nil, err
	}
	u, ok := s.m.users[userID]
	if !ok {
		return nil, nil
	}
	u.Language = language
	u.UpdatedAt = time.Now().UTC()
	s.m.users[userID] = u
	return &u, nil
}

func (s users) Delete(_ context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("users.Delete"); err != nil {
		return err
	}
	delete(s.m.users, userID)
	return nil
}

type bots struct{ m *Memory }

func (s bots) List(_ context.Context, userID string) ([]models.Bot, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.List"); err != nil {
		return nil, err
	}
	out := []models.Bot{}
	for k, b := range s.m.bots {
		if k[0] == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID > out[j].BotID })
	return out, nil
}

func (s bots) Get(_ context.Context, userID, botID string) (*models.Bot, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.Get"); err != nil {
		return nil, err
	}
	b, ok := s.m.bots[[2]string{userID, botID}]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s bots) Create(_ context.Context, b *models.Bot) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.Create"); err != nil {
		return err
	}
	s.m.bots[[2]string{b.UserID, b.BotID}] = *b
	return nil
}

func (s bots) Update(_ context.Context, b *models.Bot) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.Update"); err != nil {
		return err
	}
	key := [2]string{b.UserID, b.BotID}
	existing, ok := s.m.bots[key]
	if !ok {
		return nil
	}
	updated := *b
	updated.Status = existing.Status
	updated.CreatedAt = existing.CreatedAt
	s.m.bots[key] = updated
	return nil
}

func (s bots) Delete(_ context.Context, userID, botID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.Delete"); err != nil {
		return err
	}
	delete(s.m.bots, [2]string{userID, botID})
	return nil
}

func (s bots) DeleteByUser(_ context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.DeleteByUser"); err != nil {
		return err
	}
	for k := range s.m.bots {
		if k[0] == userID {
			delete(s.m.bots, k)
		}
	}
	return nil
}

func (s bots) SetStatus(_ context.Context, userID, botID, status string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.SetStatus"); err != nil {
		return err
	}
	key := [2]string{userID, botID}
	if b, ok := s.m.bots[key]; ok {
		b.Status = status
		s.m.bots[key] = b
	}
	return nil
}

func (s bots) TransitionStatus(_ context.Context, userID, botID, from, to string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("bots.TransitionStatus"); err != nil {
		return false, err
	}
	key := [2]string{userID, botID}
	b, ok := s.m.bots[key]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	s.m.bots[key] = b
	return true, nil
}

type sessions struct{ m *Memory }

func (s sessions) Create(_ context.Context, sess *models.Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.Create"); err != nil {
		return err
	}
	s.m.sessions[[2]string{sess.BotID, sess.SessionID}] = *sess
	return nil
}

func (s sessions) Get(_ context.Context, botID, sessionID string) (*models.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[[2]string{botID, sessionID}]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s sessions) GetActive(_ context.Context, botID string) (*models.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.GetActive"); err != nil {
		return nil, err
	}
	var found *models.Session
	for k, sess := range s.m.sessions {
		if k[0] == botID && sess.IsActive() {
			if found == nil || sess.SessionID > found.SessionID {
				cp := sess
				found = &cp
			}
		}
	}
	return found, nil
}

func (s sessions) GetByRecallBotID(_ context.Context, recallBotID string) (*models.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.GetByRecallBotID"); err != nil {
		return nil, err
	}
	for _, sess := range s.m.sessions {
		if sess.RecallBotID == recallBotID {
			cp := sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s sessions) MarkLeaving(_ context.Context, botID, sessionID string, leftAt, expiresAt time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.MarkLeaving"); err != nil {
		return err
	}
	key := [2]string{botID, sessionID}
	if sess, ok := s.m.sessions[key]; ok {
		sess.Status = models.SessionStatusLeaving
		sess.LeftAt = &leftAt
		sess.ExpiresAt = &expiresAt
		s.m.sessions[key] = sess
	}
	return nil
}

func (s sessions) MarkCompleted(_ context.Context, botID, sessionID, recordingID string, endedAt, expiresAt time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.MarkCompleted"); err != nil {
		return err
	}
	key := [2]string{botID, sessionID}
	if sess, ok := s.m.sessions[key]; ok {
		sess.Status = models.SessionStatusCompleted
		sess.EndedAt = &endedAt
		sess.RecordingID = recordingID
		sess.ExpiresAt = &expiresAt
		s.m.sessions[key] = sess
	}
	return nil
}

func (s sessions) DeleteByUser(_ context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.DeleteByUser"); err != nil {
		return err
	}
	for k, sess := range s.m.sessions {
		if sess.UserID == userID {
			s.m.deleteSessionLocked(k)
		}
	}
	return nil
}

func (s sessions) DeleteEndedByBot(_ context.Context, userID, botID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.DeleteEndedByBot"); err != nil {
		return err
	}
	for k, sess := range s.m.sessions {
		ended := sess.Status == models.SessionStatusCompleted || sess.Status == models.SessionStatusEnded
		if sess.UserID == userID && sess.BotID == botID && ended {
			s.m.deleteSessionLocked(k)
		}
	}
	return nil
}

func (s sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("sessions.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for k, sess := range s.m.sessions {
		if sess.ExpiresAt != nil && sess.ExpiresAt.Before(now) {
			s.m.deleteSessionLocked(k)
			n++
		}
	}
	return n, nil
}

// deleteSessionLocked removes a session and cascades to its events.
func (m *Memory) deleteSessionLocked(key [2]string) {
	delete(m.sessions, key)
	for ek, e := range m.events {
		if e.BotID == key[0] && e.SessionID == key[1] {
			delete(m.events, ek)
		}
	}
}

type events struct{ m *Memory }

func (s events) Append(_ context.Context, e *models.MeetingEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("events.Append"); err != nil {
		return err
	}
	s.m.events[[2]string{e.SessionID, e.EventID}] = *e
	return nil
}

func (s events) List(_ context.Context, sessionID string, q models.EventQuery) ([]models.MeetingEvent, string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("events.List"); err != nil {
		return nil, "", err
	}
	all := []models.MeetingEvent{}
	for k, e := range s.m.events {
		if k[0] != sessionID || k[1] <= q.After {
			continue
		}
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EventID < all[j].EventID })
	if q.Limit > 0 && len(all) > q.Limit {
		return all[:q.Limit], all[q.Limit-1].EventID, nil
	}
	return all, "", nil
}

func (s events) DeleteByUser(_ context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for k, e := range s.m.events {
		if e.UserID == userID {
			delete(s.m.events, k)
		}
	}
	return nil
}

type recordings struct{ m *Memory }

func (s recordings) List(_ context.Context, userID string, q models.RecordingQuery) ([]models.Recording, string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("recordings.List"); err != nil {
		return nil, "", err
	}
	all := []models.Recording{}
	for k, r := range s.m.recordings {
		if k[0] != userID {
			continue
		}
		if q.BotID != "" && r.BotID != q.BotID {
			continue
		}
		if q.After != "" && r.RecordingID >= q.After {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RecordingID > all[j].RecordingID })
	if q.Limit > 0 && len(all) > q.Limit {
		return all[:q.Limit], all[q.Limit-1].RecordingID, nil
	}
	return all, "", nil
}

func (s recordings) Get(_ context.Context, userID, recordingID string) (*models.Recording, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("recordings.Get"); err != nil {
		return nil, err
	}
	r, ok := s.m.recordings[[2]string{userID, recordingID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s recordings) GetBySession(_ context.Context, userID, sessionID string) (*models.Recording, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("recordings.GetBySession"); err != nil {
		return nil, err
	}
	for k, r := range s.m.recordings {
		if k[0] == userID && r.SessionID == sessionID {
			return &r, nil
		}
	}
	return nil, nil
}

func (s recordings) Create(_ context.Context, r *models.Recording) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("recordings.Create"); err != nil {
		return err
	}
	if r.SessionID != "" {
		for _, existing := range s.m.recordings {
			if existing.SessionID == r.SessionID {
				return ErrDuplicate
			}
		}
	}
	s.m.recordings[[2]string{r.UserID, r.RecordingID}] = *r
	return nil
}

func (s recordings) Delete(_ context.Context, userID, recordingID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.fail("recordings.Delete"); err != nil {
		return err
	}
	delete(s.m.recordings, [2]string{userID, recordingID})
	return nil
}

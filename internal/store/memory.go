package store

import (
	"context"
	"sync"

	"github.com/phlu-lernkoop/interviewd/internal/chat"
	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

// Memory is an in-process implementation of every store surface. It backs
// tests and the default dev mode. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
	maps     map[string][]netmap.Person
	finished map[string]bool

	// DefaultGroup is assigned when a session is first read. The real study
	// assigns groups during onboarding, which is out of scope here.
	DefaultGroup chat.Group
}

func NewMemory() *Memory {
	return &Memory{
		sessions:     make(map[string]chat.Session),
		turns:        make(map[string][]chat.Turn),
		maps:         make(map[string][]netmap.Person),
		finished:     make(map[string]bool),
		DefaultGroup: chat.GroupChatbot,
	}
}

func (m *Memory) Session(ctx context.Context, userID string) (chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	s := chat.Session{UserID: userID, Group: m.DefaultGroup}
	m.sessions[userID] = s
	return s, nil
}

func (m *Memory) SaveSession(ctx context.Context, s chat.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
	return nil
}

func (m *Memory) ReadChat(ctx context.Context, userID string) ([]chat.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Turn(nil), m.turns[userID]...), nil
}

func (m *Memory) LastTurn(ctx context.Context, userID string) (*chat.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.turns[userID]
	if len(stored) == 0 {
		return nil, nil
	}
	last := stored[len(stored)-1]
	return &last, nil
}

func (m *Memory) SaveChat(ctx context.Context, userID string, history []chat.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *chat.Turn
	if stored := m.turns[userID]; len(stored) > 0 {
		last = &stored[len(stored)-1]
	}
	m.turns[userID] = append(m.turns[userID], unsavedSuffix(history, last)...)
	return nil
}

func (m *Memory) MapForUser(ctx context.Context, userID string) ([]netmap.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]netmap.Person(nil), m.maps[userID]...), nil
}

func (m *Memory) SaveMap(ctx context.Context, userID string, people []netmap.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maps[userID] = append([]netmap.Person(nil), people...)
	return nil
}

func (m *Memory) MarkInterviewFinished(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[userID] = true
	return nil
}

func (m *Memory) InterviewFinished(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[userID], nil
}

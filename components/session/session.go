// Package session keeps per-user conversation history outside the pipeline.
// The pipeline receives History() as an explicit argument.
package session

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/bububa/catalogue-rag/components"
)

// DefaultMaxMessages bounds a session history
const DefaultMaxMessages = 20

type Session struct {
	*components.Memory
	id        string
	createdAt time.Time
}

func New(maxMessages int) *Session {
	id := xid.New()
	return &Session{
		Memory:    components.NewMemory(maxMessages),
		id:        id.String(),
		createdAt: id.Time(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Exchange records a question and its answer as one turn
func (s *Session) Exchange(question string, answer string) string {
	turnID := s.NewTurn()
	s.NewMessage(components.UserRole, question)
	s.NewMessage(components.AssistantRole, answer)
	return turnID
}

// Store holds live sessions keyed by id
type Store struct {
	sessions    sync.Map
	maxMessages int
}

func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{maxMessages: maxMessages}
}

// Create starts a session with a fresh id
func (s *Store) Create() *Session {
	ret := New(s.maxMessages)
	s.sessions.Store(ret.ID(), ret)
	return ret
}

func (s *Store) Get(id string) (*Session, bool) {
	v, ok := s.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// GetOrCreate returns the session for id, or a new one when id is unknown or empty
func (s *Store) GetOrCreate(id string) *Session {
	if sess, ok := s.Get(id); ok {
		return sess
	}
	return s.Create()
}

func (s *Store) Delete(id string) {
	s.sessions.Delete(id)
}

func (s *Store) Len() int {
	var n int
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ABOUTME: Correlation store holding at most one pending image per conversation
// ABOUTME: Thread-safe map with per-key locks so one conversation is handled at a time

package conversation

import (
	"errors"
	"sync"
	"time"
)

// MessageBudget is how many follow-up text messages a conversation gets to
// supply the identifier for a pending image.
const MessageBudget = 3

// ErrNoPending is returned when an operation needs a pending image that does not exist.
var ErrNoPending = errors.New("no pending image")

// PendingImage links a previously received image to the countdown of text
// messages left to name it.
type PendingImage struct {
	ImageRef          string
	MessagesRemaining int
	CreatedAt         time.Time
}

// keyLock is a reference-counted mutex so idle conversations do not leak locks.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store is the correlation store. Safe for concurrent use; create one per
// Machine (tests create one per case).
type Store struct {
	mu      sync.Mutex
	pending map[Key]*PendingImage
	locks   map[Key]*keyLock
	now     func() time.Time
}

// NewStore creates an empty correlation store.
func NewStore() *Store {
	return &Store{
		pending: make(map[Key]*PendingImage),
		locks:   make(map[Key]*keyLock),
		now:     time.Now,
	}
}

// Put records an image for a conversation, replacing any pending image and
// restarting the message budget.
func (s *Store) Put(key Key, imageRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = &PendingImage{
		ImageRef:          imageRef,
		MessagesRemaining: MessageBudget,
		CreatedAt:         s.now(),
	}
}

// Get returns a copy of the pending image for a conversation.
func (s *Store) Get(key Key) (PendingImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok {
		return PendingImage{}, false
	}
	return *p, true
}

// Decrement consumes one message from the budget and returns what is left.
// Returns ErrNoPending if the conversation has no pending image.
func (s *Store) Decrement(key Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok {
		return 0, ErrNoPending
	}
	if p.MessagesRemaining > 0 {
		p.MessagesRemaining--
	}
	return p.MessagesRemaining, nil
}

// Remove deletes the pending image for a conversation. It is idempotent.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// Len returns the number of conversations waiting for an identifier.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Lock acquires exclusive access to one conversation and returns the function
// that releases it. Different keys never block each other.
func (s *Store) Lock(key Key) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

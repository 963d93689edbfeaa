package pages

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zombor/billed/internal/bill"
)

// Session keys
const (
	KeyUser      = "user"
	KeyNewBill   = "newbill"
	KeyDashboard = "dashboard"
)

// ErrNoUser is returned when the session holds no usable identity.
var ErrNoUser = errors.New("no user in session")

// Session is per-user client state holding JSON strings.
type Session interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Clear()
}

// MemorySession is a Session held in memory
type MemorySession struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemorySession creates an empty session
func NewMemorySession() *MemorySession {
	return &MemorySession{values: make(map[string]string)}
}

func (m *MemorySession) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemorySession) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemorySession) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

func (m *MemorySession) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

// CurrentUser decodes the "user" entry of s
func CurrentUser(s Session) (bill.User, error) {
	if s == nil {
		return bill.User{}, ErrNoUser
	}
	raw, ok := s.Get(KeyUser)
	if !ok {
		return bill.User{}, ErrNoUser
	}
	var u bill.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return bill.User{}, fmt.Errorf("%w: %v", ErrNoUser, err)
	}
	if u.Email == "" {
		return bill.User{}, ErrNoUser
	}
	return u, nil
}

// SetUser stores u under the "user" key
func SetUser(s Session, u bill.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	s.Set(KeyUser, string(data))
	return nil
}

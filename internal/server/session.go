package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/zombor/billed/internal/bill"
)

const sessionCookie = "billed_session"

// cookieSession is a pages.Session kept in one cookie. Changes are written
// by flush, which must run before the response headers.
type cookieSession struct {
	mu     sync.Mutex
	values map[string]string
	dirty  bool
	secure bool
}

func loadSession(r *http.Request, secure bool) *cookieSession {
	s := &cookieSession{values: make(map[string]string), secure: secure}
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return s
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return s
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return s
	}
	s.values = values
	return s
}

func (s *cookieSession) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *cookieSession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

func (s *cookieSession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

func (s *cookieSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.dirty = true
}

// flush writes the cookie if the session changed
func (s *cookieSession) flush(w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.dirty = false

	cookie := &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if len(s.values) == 0 {
		cookie.MaxAge = -1
	} else {
		data, err := json.Marshal(s.values)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		cookie.Value = base64.RawURLEncoding.EncodeToString(data)
	}
	http.SetCookie(w, cookie)
	return nil
}

// noticeBoard keeps update failures until their admin next loads the
// dashboard.
type noticeBoard struct {
	mu      sync.Mutex
	byEmail map[string][]string
}

func newNoticeBoard() *noticeBoard {
	return &noticeBoard{byEmail: make(map[string][]string)}
}

func (n *noticeBoard) add(email, notice string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byEmail[email] = append(n.byEmail[email], notice)
}

// take returns and forgets the notices for email
func (n *noticeBoard) take(email string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	notices := n.byEmail[email]
	delete(n.byEmail, email)
	return notices
}

// adminNotifier posts failures to one admin's notices
type adminNotifier struct {
	board *noticeBoard
	email string
}

func (a adminNotifier) UpdateFailed(b bill.Bill, err error) {
	name := b.Name
	if name == "" {
		name = b.ID
	}
	a.board.add(a.email, fmt.Sprintf("La note %s n'a pas pu être enregistrée: %v", name, err))
}

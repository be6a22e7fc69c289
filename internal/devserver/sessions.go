package devserver

import (
	"sync"

	"github.com/mazen160/go-random"
)

const (
	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"
)

type sessions struct {
	mu    sync.Mutex
	users map[string]string
}

func newSessions() *sessions {
	return &sessions{users: map[string]string{}}
}

func (s *sessions) create(username string) (string, error) {
	id, err := random.String(32)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = username
	return id, nil
}

func (s *sessions) user(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.users[id]
	return username, ok
}

func (s *sessions) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func newCSRFToken() (string, error) {
	return random.String(32)
}

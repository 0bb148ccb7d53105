// Package memstore is an in-memory implementation of every store interface the
// service uses. It backs STORE_DRIVER=memory and the end-to-end tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
	"github.com/transportuni/chatbot-api/chat"
	"github.com/transportuni/chatbot-api/dashboard"
	"github.com/transportuni/chatbot-api/users"
)

type storedMessage struct {
	chat.Message
	seq uint64
}

// Store holds accounts and chat messages behind one RWMutex. Values are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*auth.Account
	messages map[uuid.UUID]*storedMessage
	seq      uint64
	now      func() time.Time
}

var (
	_ auth.AccountStore    = (*Store)(nil)
	_ users.AdminStore     = (*Store)(nil)
	_ dashboard.StatsStore = (*Store)(nil)
	_ chat.Store           = chatView{}
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*auth.Account),
		messages: make(map[uuid.UUID]*storedMessage),
		now:      time.Now,
	}
}

func accountNotFound() error { return apperror.NewNotFoundError("account not found", nil) }
func messageNotFound() error { return apperror.NewNotFoundError("chat message not found", nil) }

func copyAccount(a *auth.Account) *auth.Account {
	cp := *a
	return &cp
}

// FindByID implements auth.AccountFinder.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, accountNotFound()
	}
	return copyAccount(a), nil
}

// FindByLogin matches the username first, then the lowercased email.
func (s *Store) FindByLogin(_ context.Context, login string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email := strings.ToLower(login)
	var byEmail *auth.Account
	for _, a := range s.accounts {
		if a.Username == login {
			return copyAccount(a), nil
		}
		if a.Email == email {
			byEmail = a
		}
	}
	if byEmail != nil {
		return copyAccount(byEmail), nil
	}
	return nil, accountNotFound()
}

// FindByUsername implements users.AdminStore.
func (s *Store) FindByUsername(_ context.Context, username string) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return copyAccount(a), nil
		}
	}
	return nil, accountNotFound()
}

// Create enforces username and email uniqueness the way the database constraints do.
func (s *Store) Create(_ context.Context, account *auth.Account) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == account.Username {
			return nil, apperror.NewConflictError("username already exists", nil)
		}
		if a.Email == account.Email {
			return nil, apperror.NewConflictError("email already exists", nil)
		}
	}
	cp := copyAccount(account)
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if _, taken := s.accounts[cp.ID]; taken {
		return nil, apperror.NewConflictError("account already exists", nil)
	}
	now := s.now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.accounts[cp.ID] = cp
	return copyAccount(cp), nil
}

// UpdateFlags implements users.AdminStore.
func (s *Store) UpdateFlags(_ context.Context, id uuid.UUID, isActive, isAdmin *bool) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, accountNotFound()
	}
	if isActive != nil {
		a.IsActive = *isActive
	}
	if isAdmin != nil {
		a.IsAdmin = *isAdmin
	}
	a.UpdatedAt = s.now().UTC()
	return copyAccount(a), nil
}

// Chat returns a view of the store implementing chat.Store. Accounts and
// messages share one lock so a message can check that its owner exists.
func (s *Store) Chat() chat.Store { return chatView{s} }

type chatView struct{ s *Store }

func (v chatView) Create(_ context.Context, msg *chat.Message) (*chat.Message, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[msg.UserID]; !ok {
		return nil, apperror.NewBadRequestError("owner account does not exist", nil)
	}
	s.seq++
	stored := &storedMessage{Message: *msg, seq: s.seq}
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	s.messages[stored.ID] = stored
	out := stored.Message
	return &out, nil
}

func (v chatView) List(_ context.Context, owner uuid.UUID, limit, offset int) ([]chat.Message, int64, error) {
	s := v.s
	s.mu.RLock()
	owned := make([]*storedMessage, 0)
	for _, m := range s.messages {
		if m.UserID == owner {
			owned = append(owned, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].Timestamp.Equal(owned[j].Timestamp) {
			return owned[i].Timestamp.After(owned[j].Timestamp)
		}
		return owned[i].seq > owned[j].seq
	})

	total := int64(len(owned))
	if offset >= len(owned) {
		return []chat.Message{}, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	page := make([]chat.Message, 0, end-offset)
	for _, m := range owned[offset:end] {
		page = append(page, m.Message)
	}
	return page, total, nil
}

func (v chatView) FindOwned(_ context.Context, owner, id uuid.UUID) (*chat.Message, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok || m.UserID != owner {
		return nil, messageNotFound()
	}
	out := m.Message
	return &out, nil
}

func (v chatView) Delete(_ context.Context, owner, id uuid.UUID) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.UserID != owner {
		return messageNotFound()
	}
	delete(s.messages, id)
	return nil
}

func (v chatView) DeleteAll(_ context.Context, owner uuid.UUID) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.messages {
		if m.UserID == owner {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

// CountAccounts implements dashboard.StatsStore.
func (s *Store) CountAccounts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

// CountQuestions implements dashboard.StatsStore.
func (s *Store) CountQuestions(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages {
		if m.Role == chat.RoleUser {
			n++
		}
	}
	return n, nil
}

// FrequentQuestions implements dashboard.StatsStore.
func (s *Store) FrequentQuestions(_ context.Context, n int) ([]dashboard.FrequentQuestion, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, m := range s.messages {
		if m.Role == chat.RoleUser {
			counts[m.Message.Message]++
		}
	}
	s.mu.RUnlock()

	out := make([]dashboard.FrequentQuestion, 0, len(counts))
	for q, c := range counts {
		out = append(out, dashboard.FrequentQuestion{Question: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Question < out[j].Question
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

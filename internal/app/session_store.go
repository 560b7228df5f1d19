package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// MemorySessionStore keeps conversation state in process. Entries expire after ttl
// of inactivity; Sweep reclaims them.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]domain.Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[int64]domain.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Get(_ context.Context, telegramID int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[telegramID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(session) {
		delete(m.sessions, telegramID)
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (m *MemorySessionStore) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.TelegramID == 0 {
		return fmt.Errorf("session without telegram id")
	}
	session.UpdatedAt = m.now()
	m.mu.Lock()
	m.sessions[session.TelegramID] = *cloneSession(*session)
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	delete(m.sessions, telegramID)
	m.mu.Unlock()
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemorySessionStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if m.expired(session) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemorySessionStore) expired(session domain.Session) bool {
	return m.ttl > 0 && m.now().Sub(session.UpdatedAt) >= m.ttl
}

func cloneSession(session domain.Session) *domain.Session {
	if session.Payment != nil {
		draft := *session.Payment
		session.Payment = &draft
	}
	return &session
}

// RedisSessionStore keeps conversation state as JSON under a per-identity key
// whose expiry is refreshed on every save.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "candicepay"
	}
	return &RedisSessionStore{client: client, prefix: trimmedPrefix + ":session", ttl: ttl}
}

func (r *RedisSessionStore) key(telegramID int64) string {
	return r.prefix + ":" + strconv.FormatInt(telegramID, 10)
}

func (r *RedisSessionStore) Get(ctx context.Context, telegramID int64) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, r.key(telegramID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.TelegramID == 0 {
		return fmt.Errorf("session without telegram id")
	}
	session.UpdatedAt = time.Now()
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(session.TelegramID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, telegramID int64) error {
	if err := r.client.Del(ctx, r.key(telegramID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

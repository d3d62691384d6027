package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound はセッションが存在しない場合のエラー
var ErrSessionNotFound = errors.New("session not found")

// Role はメッセージの送信者
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message はセッションに記録される1件のメッセージ
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // UTC, RFC3339
}

// Manager はチャットセッションを管理する。
// セッションは追記のみのメッセージログで、uuid をキーに保持する。
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID][]Message
	now      func() time.Time
}

// NewManager は新しい Manager を作成する
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID][]Message),
		now:      time.Now,
	}
}

// Create は新しいセッションを作成してIDを返す
func (m *Manager) Create() uuid.UUID {
	id := uuid.New()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = []Message{}
	return id
}

// Append はメッセージを追記する
func (m *Manager) Append(id uuid.UUID, role Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	m.sessions[id] = append(messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	})
	return nil
}

// History はメッセージ履歴のコピーを返す。存在しないセッションは空。
func (m *Manager) History(id uuid.UUID) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.sessions[id]
	history := make([]Message, len(messages))
	copy(history, messages)
	return history
}

// Remove はセッションを削除する
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len は保持しているセッション数を返す
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AppendAndHistory(t *testing.T) {
	m := NewManager()
	m.now = func() time.Time {
		return time.Date(2024, 6, 1, 15, 4, 5, 0, time.FixedZone("MSK", 3*60*60))
	}

	id := m.Create()
	require.NoError(t, m.Append(id, RoleUser, "Как лечить гипертензию?"))
	require.NoError(t, m.Append(id, RoleBot, "Ответ"))

	history := m.History(id)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "2024-06-01T12:04:05Z", history[0].Timestamp)
	assert.Equal(t, RoleBot, history[1].Role)

	// 返した履歴を書き換えても内部状態は変わらない
	history[0].Content = "changed"
	assert.Equal(t, "Как лечить гипертензию?", m.History(id)[0].Content)
}

func TestManager_UnknownSession(t *testing.T) {
	m := NewManager()

	assert.ErrorIs(t, m.Append(uuid.New(), RoleUser, "x"), ErrSessionNotFound)
	assert.Empty(t, m.History(uuid.New()))
}

func TestManager_Remove(t *testing.T) {
	m := NewManager()
	id := m.Create()
	m.Remove(id)

	assert.Zero(t, m.Len())
	assert.ErrorIs(t, m.Append(id, RoleUser, "x"), ErrSessionNotFound)
}

func TestManager_ConcurrentSessions(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := m.Create()
			for j := 0; j < 10; j++ {
				assert.NoError(t, m.Append(id, RoleUser, "q"))
			}
			assert.Len(t, m.History(id), 10)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, m.Len())
}

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"DeFAI-Agent/internal/chat"
)

// Manager 为每个会话提供串行化的读改写入口。同一会话内的回合
// 严格顺序执行，不同会话之间完全并行。
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager 创建会话管理器。
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithSession 在持有会话锁的前提下执行 fn：加载（不存在则新建）、
// 执行、保存。id 为空时生成新会话并返回其 ID。fn 返回错误时
// 不保存任何修改。
func (m *Manager) WithSession(ctx context.Context, id string, fn func(sess *chat.Session) error) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return id, err
		}
		sess = chat.NewSession(id)
	}

	if err := fn(sess); err != nil {
		return id, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return id, err
	}
	return id, nil
}

// Reset 删除会话的持久化状态。
func (m *Manager) Reset(ctx context.Context, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Delete(ctx, id)
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

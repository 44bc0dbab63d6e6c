package session

import (
	"context"
	"sync"

	"DeFAI-Agent/internal/chat"
	xerrors "DeFAI-Agent/internal/errors"
)

// MemoryStore 以内存方式保存会话，用于单机部署与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Snapshot
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Snapshot)}
}

// Load 实现 Store 接口。
func (m *MemoryStore) Load(_ context.Context, id string) (*chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return restore(snap), nil
}

// Save 实现 Store 接口。
func (m *MemoryStore) Save(_ context.Context, sess *chat.Session) error {
	if sess == nil || sess.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = snapshotOf(sess)
	return nil
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

package history

import (
	"context"
	"sync"
	"time"

	xerrors "DeFAI-Agent/internal/errors"
)

// 内存实现最多保留的记录条数，超出后淘汰最旧的记录。
const memoryCapacity = 512

// MemoryRepository 以内存方式保存对话历史，用于单机部署与测试。
type MemoryRepository struct {
	mu      sync.RWMutex
	records []ChatRecord
	nextID  int64
}

// NewMemoryRepository 创建 MemoryRepository。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

// Append 实现 Repository 接口。
func (m *MemoryRepository) Append(_ context.Context, record ChatRecord) error {
	if record.SessionID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = m.nextID
	m.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records = append(m.records, record)
	if len(m.records) > memoryCapacity {
		m.records = m.records[len(m.records)-memoryCapacity:]
	}
	return nil
}

// ListBySession 按时间正序返回指定会话最近的记录。
func (m *MemoryRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]ChatRecord, 0, limit)
	for _, record := range m.records {
		if record.SessionID == sessionID {
			matched = append(matched, record)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// Close 对内存存储无需操作。
func (m *MemoryRepository) Close() error { return nil }

var _ Repository = (*MemoryRepository)(nil)

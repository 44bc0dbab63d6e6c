package history

import (
	"context"
	"time"
)

// ChatRecord 是一条对话轮次的审计记录。
type ChatRecord struct {
	ID        int64     `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent,omitempty"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository 定义对话历史的持久化契约。历史是旁路审计数据，
// 写入失败不应阻断对话主流程。
type Repository interface {
	Append(ctx context.Context, record ChatRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error)
	Close() error
}

const defaultListLimit = 50

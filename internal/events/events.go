package events

import (
	"context"
	"time"
)

// TxStatus 表示交易事件的结算状态。
type TxStatus string

const (
	// TxStatusSent 表示交易已由节点受理。
	TxStatusSent TxStatus = "sent"
	// TxStatusFailed 表示节点拒绝了交易。
	TxStatusFailed TxStatus = "failed"
	// TxStatusHandedOff 表示交易已移交客户端补签。
	TxStatusHandedOff TxStatus = "handed_off"
)

// TxEvent 描述一次交易结算的审计事件。
type TxEvent struct {
	SessionID string    `json:"session_id"`
	TxHash    string    `json:"tx_hash,omitempty"`
	To        string    `json:"to"`
	ValueWei  string    `json:"value_wei"`
	Status    TxStatus  `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher 定义事件发布方的契约。发布是尽力而为的旁路动作，
// 实现不得因发布失败影响主流程。
type Publisher interface {
	Publish(ctx context.Context, event TxEvent)
	Close() error
}

// NoopPublisher 丢弃全部事件，用于未配置消息队列的部署。
type NoopPublisher struct{}

// Publish 丢弃事件。
func (NoopPublisher) Publish(context.Context, TxEvent) {}

// Close 无资源可释放。
func (NoopPublisher) Close() error { return nil }

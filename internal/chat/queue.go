package chat

import (
	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/web3"
)

// ErrEmptyQueue 表示对空队列执行了结算操作，属于编程错误。
var ErrEmptyQueue = xerrors.New(xerrors.CodeSessionFailure, "transaction queue is empty")

// TxProposal 是队列中的一笔待确认交易。ConfirmationText 入队后不可变，
// 用户逐字复述该文本即视为授权发送。
type TxProposal struct {
	ConfirmationText string         `json:"confirmation_text"`
	Payload          web3.TxPayload `json:"payload"`
}

// TxQueue 保存一个会话内的待确认交易。仅最后一个元素可被确认，
// 更早的元素是惰性历史，永远不会被发送。
//
// 队列本身不做并发保护，由会话管理器保证同一会话内的回合串行执行。
type TxQueue struct {
	proposals []TxProposal
}

// NewTxQueue 创建空队列。
func NewTxQueue() *TxQueue {
	return &TxQueue{}
}

// Enqueue 追加一笔待确认交易。旧条目不会被驱逐，仅失去可确认性。
func (q *TxQueue) Enqueue(confirmationText string, payload web3.TxPayload) {
	q.proposals = append(q.proposals, TxProposal{
		ConfirmationText: confirmationText,
		Payload:          payload,
	})
}

// PeekLast 返回最新的待确认交易，这是确认匹配唯一合法的读取方式。
func (q *TxQueue) PeekLast() (TxProposal, bool) {
	if len(q.proposals) == 0 {
		return TxProposal{}, false
	}
	return q.proposals[len(q.proposals)-1], true
}

// ResolveLast 移除并返回最新条目。每条确认消息至多调用一次，
// 且必须发生在任何可能被重试的外部 I/O 之前，避免重复提交。
func (q *TxQueue) ResolveLast() (TxProposal, error) {
	if len(q.proposals) == 0 {
		return TxProposal{}, ErrEmptyQueue
	}
	last := q.proposals[len(q.proposals)-1]
	q.proposals = q.proposals[:len(q.proposals)-1]
	return last, nil
}

// Len 返回队列中的条目数，含惰性历史。
func (q *TxQueue) Len() int {
	return len(q.proposals)
}

// Clear 清空队列。
func (q *TxQueue) Clear() {
	q.proposals = nil
}

// Snapshot 返回条目副本，供会话持久化使用。
func (q *TxQueue) Snapshot() []TxProposal {
	out := make([]TxProposal, len(q.proposals))
	copy(out, q.proposals)
	return out
}

// Restore 用快照内容重建队列。
func (q *TxQueue) Restore(proposals []TxProposal) {
	q.proposals = make([]TxProposal, len(proposals))
	copy(q.proposals, proposals)
}

package session

import (
	"context"
	"time"

	"DeFAI-Agent/internal/chat"
	xerrors "DeFAI-Agent/internal/errors"
)

// ErrNotFound 表示会话不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "session not found")

// Snapshot 是会话状态的可序列化表示，用于跨存储后端持久化。
type Snapshot struct {
	ID                   string            `json:"id"`
	WalletAddress        string            `json:"wallet_address,omitempty"`
	AttestationRequested bool              `json:"attestation_requested"`
	Proposals            []chat.TxProposal `json:"proposals,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// Store 定义会话持久化后端的契约。实现需保证 Load 返回的会话
// 与存储中的数据相互独立。
type Store interface {
	Load(ctx context.Context, id string) (*chat.Session, error)
	Save(ctx context.Context, sess *chat.Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

func snapshotOf(sess *chat.Session) Snapshot {
	return Snapshot{
		ID:                   sess.ID,
		WalletAddress:        sess.WalletAddress,
		AttestationRequested: sess.AttestationRequested,
		Proposals:            sess.Queue.Snapshot(),
		CreatedAt:            sess.CreatedAt,
	}
}

func restore(snap Snapshot) *chat.Session {
	sess := chat.NewSession(snap.ID)
	sess.WalletAddress = snap.WalletAddress
	sess.AttestationRequested = snap.AttestationRequested
	sess.Queue.Restore(snap.Proposals)
	if !snap.CreatedAt.IsZero() {
		sess.CreatedAt = snap.CreatedAt
	}
	return sess
}

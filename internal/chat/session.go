package chat

import "time"

// Session 保存单个会话的全部可变状态。队列由会话独占，
// 不与其他会话共享任何数据。
type Session struct {
	// ID 是会话的唯一标识。
	ID string
	// WalletAddress 是已连接的钱包地址（EIP-55 校验和形式），
	// 未连接时为空。仅显式重置可以清除。
	WalletAddress string
	// AttestationRequested 为 true 表示上一回合发出了证明挑战，
	// 正在等待本回合的应答。
	AttestationRequested bool
	// Queue 是本会话的待确认交易队列。
	Queue *TxQueue
	// CreatedAt 是会话创建时间。
	CreatedAt time.Time
}

// NewSession 创建一个空会话。
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		Queue:     NewTxQueue(),
		CreatedAt: time.Now(),
	}
}

// Connected 判断会话是否已连接钱包。
func (s *Session) Connected() bool {
	return s.WalletAddress != ""
}

// Reset 清除钱包地址与交易队列。重复调用是幂等的。
func (s *Session) Reset() {
	s.WalletAddress = ""
	s.Queue.Clear()
}

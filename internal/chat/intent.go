package chat

import (
	"fmt"
	"strings"

	xerrors "DeFAI-Agent/internal/errors"
)

// IntentLabel 表示用户消息经分类后的意图，取值为固定闭集。
type IntentLabel string

const (
	IntentConnectWallet      IntentLabel = "CONNECT_WALLET"
	IntentSendToken          IntentLabel = "SEND_TOKEN"
	IntentSwapToken          IntentLabel = "SWAP_TOKEN"
	IntentRequestAttestation IntentLabel = "REQUEST_ATTESTATION"
	IntentConversational     IntentLabel = "CONVERSATIONAL"
)

// ParseIntent 将分类器的原始输出解析为意图标签。输出不在闭集内时报错，
// 由调用方决定降级策略。
func ParseIntent(raw string) (IntentLabel, error) {
	label := IntentLabel(strings.ToUpper(strings.TrimSpace(raw)))
	switch label {
	case IntentConnectWallet, IntentSendToken, IntentSwapToken,
		IntentRequestAttestation, IntentConversational:
		return label, nil
	default:
		return "", xerrors.New(xerrors.CodeClassificationFailure,
			fmt.Sprintf("无法识别的意图标签: %q", raw))
	}
}

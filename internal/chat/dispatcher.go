package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/events"
	"DeFAI-Agent/internal/llm"
	"DeFAI-Agent/internal/observability/metrics"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/internal/web3"
	"DeFAI-Agent/pkg/logger"
)

// AttestationIssuer 定义调度器对证明签发方的最小依赖。
type AttestationIssuer interface {
	IssueToken(ctx context.Context, nonces []string) (string, error)
}

const defaultTransferGas = 21000

// Dispatcher 是消息处理的决策核心。对每条入站消息按固定优先级
// 依次评估五个守卫：命令、隐式连接钱包、交易确认、证明应答、
// 意图分类，命中即停（连接钱包成功时除外，该守卫会继续向下）。
//
// 调度器自身无状态，所有会话状态通过参数传入；同一 Dispatcher
// 可被多个会话并发复用。
type Dispatcher struct {
	ai          llm.ChatClient
	chain       web3.Client
	attestation AttestationIssuer
	prompts     *prompts.Service
	publisher   events.Publisher
	explorerURL string
	gasLimit    uint64
	log         *slog.Logger
}

// Config 汇集调度器的全部依赖。
type Config struct {
	AI          llm.ChatClient
	Chain       web3.Client
	Attestation AttestationIssuer
	Prompts     *prompts.Service
	// Publisher 可选，设置后在交易结算时发布事件。
	Publisher events.Publisher
	// ExplorerURL 是区块浏览器地址，用于渲染交易确认文案。
	ExplorerURL string
	// GasLimit 是原生转账的 gas 上限，默认 21000。
	GasLimit uint64
}

// NewDispatcher 创建调度器。
func NewDispatcher(cfg Config) *Dispatcher {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultTransferGas
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Dispatcher{
		ai:          cfg.AI,
		chain:       cfg.Chain,
		attestation: cfg.Attestation,
		prompts:     cfg.Prompts,
		publisher:   publisher,
		explorerURL: cfg.ExplorerURL,
		gasLimit:    gasLimit,
		log:         logger.Named("dispatcher"),
	}
}

// HandleMessage 处理一条消息并可能修改会话状态。返回错误表示本回合
// 不可恢复的失败，由传输层映射为服务级错误；业务性失败（节点拒绝、
// 证明失败等）以文本形式返回，回合正常完成。
func (d *Dispatcher) HandleMessage(ctx context.Context, sess *Session, message, walletAddress string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("处理消息时发生 panic",
				slog.String("session_id", sess.ID), slog.Any("panic", r))
			reply = ""
			err = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("消息处理失败: %v", r))
		}
	}()

	d.log.Debug("收到消息", slog.String("session_id", sess.ID))

	// 守卫一：命令。命中后不再落入后续守卫。
	if strings.HasPrefix(message, "/") {
		metrics.ObserveChatTurn("COMMAND")
		return d.handleCommand(sess, message), nil
	}

	// 守卫二：隐式连接钱包。失败即返回；成功则继续向下，
	// 同一条消息还会参与后续守卫与意图分类。
	if walletAddress != "" && !sess.Connected() {
		checksummed, connectErr := d.chain.ChecksumAddress(walletAddress)
		if connectErr != nil {
			d.log.Warn("连接钱包失败",
				slog.String("session_id", sess.ID), slog.Any("error", connectErr))
			return fmt.Sprintf("Failed to connect wallet: %v", connectErr), nil
		}
		sess.WalletAddress = checksummed
		d.log.Debug("钱包已连接",
			slog.String("session_id", sess.ID), slog.String("address", checksummed))
	}

	// 守卫三：交易确认。仅最新条目可被确认，且必须逐字匹配。
	if last, ok := sess.Queue.PeekLast(); ok && message == last.ConfirmationText {
		metrics.ObserveChatTurn("CONFIRMATION")
		return d.handleConfirmation(ctx, sess)
	}

	// 守卫四：证明应答。标志先清除，无论签发成败都只消费一次。
	if sess.AttestationRequested {
		metrics.ObserveChatTurn("ATTESTATION_REPLY")
		sess.AttestationRequested = false
		token, attErr := d.attestation.IssueToken(ctx, []string{message})
		if attErr != nil {
			d.log.Warn("证明签发失败",
				slog.String("session_id", sess.ID), slog.Any("error", attErr))
			return fmt.Sprintf("The attestation failed with error:\n%v", attErr), nil
		}
		logger.Audit().Info("attestation_issued", slog.String("session_id", sess.ID))
		return token, nil
	}

	// 守卫五：分类并路由。
	intent := d.classifyIntent(ctx, message)
	metrics.ObserveChatTurn(string(intent))
	d.log.Debug("意图分类完成",
		slog.String("session_id", sess.ID), slog.String("intent", string(intent)))

	switch intent {
	case IntentConnectWallet:
		return d.handleConnectWallet(ctx, sess, message)
	case IntentSendToken:
		return d.handleSendToken(ctx, sess, message)
	case IntentSwapToken:
		return d.handleSwapToken(ctx, sess)
	case IntentRequestAttestation:
		return d.handleAttestation(ctx, sess)
	case IntentConversational:
		return d.handleConversation(ctx, message)
	default:
		return "", xerrors.New(xerrors.CodeClassificationFailure,
			fmt.Sprintf("未处理的意图标签: %q", intent))
	}
}

// handleCommand 处理以 "/" 开头的命令，目前仅支持 /reset。
func (d *Dispatcher) handleCommand(sess *Session, command string) string {
	if command == "/reset" {
		sess.Reset()
		d.ai.Reset()
		logger.Audit().Info("session_reset", slog.String("session_id", sess.ID))
		return "Reset complete"
	}
	return "Unknown command"
}

// handleConfirmation 结算最新的待确认交易。条目在任何外部 I/O 之前
// 出队，发送失败视为已结算而非自动重试，防止重复提交。
func (d *Dispatcher) handleConfirmation(ctx context.Context, sess *Session) (string, error) {
	proposal, err := sess.Queue.ResolveLast()
	if err != nil {
		return "", err
	}

	result, sendErr := d.chain.SendProposal(ctx, proposal.Payload)
	if sendErr != nil {
		d.log.Warn("交易发送失败",
			slog.String("session_id", sess.ID), slog.Any("error", sendErr))
		d.publisher.Publish(ctx, events.TxEvent{
			SessionID: sess.ID,
			To:        proposal.Payload.To,
			ValueWei:  proposal.Payload.Value.String(),
			Status:    events.TxStatusFailed,
			Detail:    sendErr.Error(),
		})
		return fmt.Sprintf("Unfortunately the tx failed with the error:\n%v", sendErr), nil
	}

	// 需要客户端补签的结果原样透传，不生成确认文案。
	if strings.HasPrefix(result, web3.ClientSideDataPrefix) {
		d.publisher.Publish(ctx, events.TxEvent{
			SessionID: sess.ID,
			To:        proposal.Payload.To,
			ValueWei:  proposal.Payload.Value.String(),
			Status:    events.TxStatusHandedOff,
		})
		return result, nil
	}

	logger.Audit().Info("tx_sent",
		slog.String("session_id", sess.ID), slog.String("tx_hash", result))
	d.publisher.Publish(ctx, events.TxEvent{
		SessionID: sess.ID,
		TxHash:    result,
		To:        proposal.Payload.To,
		ValueWei:  proposal.Payload.Value.String(),
		Status:    events.TxStatusSent,
	})

	return d.generate(ctx, "tx_confirmation", map[string]any{
		"tx_hash":        result,
		"block_explorer": d.explorerURL,
	})
}

// classifyIntent 将消息分类为闭集内的意图标签。任何失败（生成失败、
// 标签不可解析）都降级为 CONVERSATIONAL，绝不阻塞调度。
func (d *Dispatcher) classifyIntent(ctx context.Context, message string) IntentLabel {
	text, err := d.generate(ctx, "semantic_router", map[string]any{"user_input": message})
	if err != nil {
		d.log.Warn("意图分类失败, 降级为对话", slog.Any("error", err))
		return IntentConversational
	}
	intent, err := ParseIntent(text)
	if err != nil {
		d.log.Warn("意图标签不可解析, 降级为对话", slog.Any("error", err))
		return IntentConversational
	}
	return intent
}

// handleConnectWallet 处理显式连接钱包意图。重复连接是幂等的；
// 地址缺失或非法一律降级为连接指引，不视为错误。
func (d *Dispatcher) handleConnectWallet(ctx context.Context, sess *Session, message string) (string, error) {
	if sess.Connected() {
		return fmt.Sprintf("Wallet already connected - %s", sess.WalletAddress), nil
	}

	text, err := d.generate(ctx, "connect_wallet", map[string]any{"user_input": message})
	if err != nil {
		return "", err
	}

	var extracted struct {
		WalletAddress string `json:"wallet_address"`
	}
	if jsonErr := json.Unmarshal([]byte(text), &extracted); jsonErr != nil {
		return d.generate(ctx, "wallet_connection_instructions", nil)
	}
	if !strings.HasPrefix(extracted.WalletAddress, "0x") {
		return d.generate(ctx, "wallet_connection_instructions", nil)
	}

	checksummed, addrErr := d.chain.ChecksumAddress(extracted.WalletAddress)
	if addrErr != nil {
		return d.generate(ctx, "wallet_connection_instructions", nil)
	}

	sess.WalletAddress = checksummed
	d.log.Debug("钱包已连接",
		slog.String("session_id", sess.ID), slog.String("address", checksummed))
	return d.generate(ctx, "wallet_connected", map[string]any{"address": checksummed})
}

// handleSendToken 处理转账意图：抽取参数、构造交易、入队待确认。
// 抽取结果字段不全或金额为零时回询，不入队任何内容。
func (d *Dispatcher) handleSendToken(ctx context.Context, sess *Session, message string) (string, error) {
	if !sess.Connected() {
		return d.generate(ctx, "wallet_required", nil)
	}

	text, err := d.generate(ctx, "token_send", map[string]any{"user_input": message})
	if err != nil {
		return "", err
	}

	var extracted map[string]any
	if jsonErr := json.Unmarshal([]byte(text), &extracted); jsonErr != nil {
		return d.generate(ctx, "follow_up_token_send", nil)
	}
	amount, _ := extracted["amount"].(float64)
	toAddress, _ := extracted["to_address"].(string)
	if len(extracted) != 2 || amount == 0 {
		return d.generate(ctx, "follow_up_token_send", nil)
	}

	payload, err := d.buildTransferPayload(ctx, sess.WalletAddress, toAddress, amount)
	if err != nil {
		return "", err
	}

	sess.Queue.Enqueue(message, payload)
	d.log.Debug("交易已入队",
		slog.String("session_id", sess.ID),
		slog.String("to", payload.To),
		slog.String("value_wei", payload.Value.String()))

	preview := fmt.Sprintf("Transaction Preview: Sending %s FLR to %s\nType CONFIRM to proceed.",
		web3.FromWei(payload.Value), payload.To)
	return preview, nil
}

// buildTransferPayload 以链上即时状态构造转账载荷。nonce 与费用参数
// 每次重新读取，绝不跨回合缓存。
func (d *Dispatcher) buildTransferPayload(ctx context.Context, from, to string, amount float64) (web3.TxPayload, error) {
	checksummed, err := d.chain.ChecksumAddress(to)
	if err != nil {
		return web3.TxPayload{}, err
	}
	nonce, err := d.chain.PendingNonce(ctx, from)
	if err != nil {
		return web3.TxPayload{}, err
	}
	gasPrice, err := d.chain.SuggestGasPrice(ctx)
	if err != nil {
		return web3.TxPayload{}, err
	}
	tip, err := d.chain.SuggestPriorityFee(ctx)
	if err != nil {
		return web3.TxPayload{}, err
	}
	chainID, err := d.chain.ChainID(ctx)
	if err != nil {
		return web3.TxPayload{}, err
	}

	return web3.TxPayload{
		From:                 from,
		To:                   checksummed,
		Value:                web3.ToWei(amount),
		Nonce:                nonce,
		Gas:                  d.gasLimit,
		MaxFeePerGas:         gasPrice,
		MaxPriorityFeePerGas: tip,
		ChainID:              chainID,
		Type:                 2,
	}, nil
}

// handleSwapToken 处理兑换意图。能力尚未实现，仅检查钱包前置条件。
func (d *Dispatcher) handleSwapToken(ctx context.Context, sess *Session) (string, error) {
	if !sess.Connected() {
		return d.generate(ctx, "wallet_required", nil)
	}
	return "Sorry I can't do that right now", nil
}

// handleAttestation 生成证明挑战并置位标志。真正的令牌签发发生在
// 下一回合的证明应答守卫。
func (d *Dispatcher) handleAttestation(ctx context.Context, sess *Session) (string, error) {
	text, err := d.generate(ctx, "request_attestation", nil)
	if err != nil {
		return "", err
	}
	sess.AttestationRequested = true
	return text, nil
}

// handleConversation 将消息转发给对话能力，回复原样返回。
// 多轮记忆由文本生成方持有，不进入会话状态。
func (d *Dispatcher) handleConversation(ctx context.Context, message string) (string, error) {
	resp, err := d.ai.SendMessage(ctx, message)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// generate 渲染具名提示词并调用文本生成。
func (d *Dispatcher) generate(ctx context.Context, name string, inputs map[string]any) (string, error) {
	prompt, mimeType, schema, err := d.prompts.Format(name, inputs)
	if err != nil {
		return "", err
	}
	resp, err := d.ai.Generate(ctx, llm.Request{
		Prompt:           prompt,
		ResponseMIMEType: mimeType,
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

package chat

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/llm"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/internal/web3"
)

const (
	testWallet    = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	testRecipient = "0x1234567890abcdef1234567890abcdef12345678"
)

// stubAI 按提示词正文的特征片段返回可辨识的固定应答。
type stubAI struct {
	route         string
	tokenSendJSON string
	walletJSON    string
	generateErr   error
	resets        int
}

func (s *stubAI) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	switch {
	case strings.Contains(req.Prompt, "Classify the following user input"):
		route := s.route
		if route == "" {
			route = "CONVERSATIONAL"
		}
		return &llm.Response{Text: route}, nil
	case strings.Contains(req.Prompt, "token send operation"):
		return &llm.Response{Text: s.tokenSendJSON}, nil
	case strings.Contains(req.Prompt, "Extract a wallet address"):
		return &llm.Response{Text: s.walletJSON}, nil
	case strings.Contains(req.Prompt, "wallet connection is required"):
		return &llm.Response{Text: "wallet required reply"}, nil
	case strings.Contains(req.Prompt, "connecting a wallet to the DeFi application"):
		return &llm.Response{Text: "connection instructions reply"}, nil
	case strings.Contains(req.Prompt, "wallet has been connected successfully"):
		return &llm.Response{Text: "wallet connected reply"}, nil
	case strings.Contains(req.Prompt, "I need more information"):
		return &llm.Response{Text: "follow up reply"}, nil
	case strings.Contains(req.Prompt, "confirming a transaction has been processed"):
		return &llm.Response{Text: "tx confirmed reply"}, nil
	case strings.Contains(req.Prompt, "remote attestation"):
		return &llm.Response{Text: "attestation challenge reply"}, nil
	default:
		return &llm.Response{Text: "generic reply"}, nil
	}
}

func (s *stubAI) SendMessage(_ context.Context, message string) (*llm.Response, error) {
	return &llm.Response{Text: "chat: " + message}, nil
}

func (s *stubAI) Reset() { s.resets++ }

// stubChain 用固定值模拟链上读取，并记录发送调用。
type stubChain struct {
	sendResult string
	sendErr    error
	sendCalls  int
}

func (c *stubChain) ChecksumAddress(raw string) (string, error) {
	if !strings.HasPrefix(raw, "0x") || len(raw) != 42 {
		return "", xerrors.Wrap(web3.CodeInvalidAddress, web3.ErrInvalidAddress,
			fmt.Sprintf("无效的钱包地址: %q", raw))
	}
	return raw, nil
}

func (c *stubChain) PendingNonce(context.Context, string) (uint64, error) { return 7, nil }

func (c *stubChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(25_000_000_000), nil
}

func (c *stubChain) SuggestPriorityFee(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (c *stubChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(114), nil }

func (c *stubChain) BalanceAt(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *stubChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{ChainID: "0x72"}, nil
}

func (c *stubChain) SendProposal(context.Context, web3.TxPayload) (string, error) {
	c.sendCalls++
	if c.sendErr != nil {
		return "", c.sendErr
	}
	return c.sendResult, nil
}

func (c *stubChain) Close() {}

type stubAttestation struct {
	token string
	err   error
	calls int
}

func (a *stubAttestation) IssueToken(context.Context, []string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.token, nil
}

type dispatcherFixture struct {
	dispatcher  *Dispatcher
	ai          *stubAI
	chain       *stubChain
	attestation *stubAttestation
	session     *Session
}

func newDispatcherFixture() *dispatcherFixture {
	ai := &stubAI{}
	chain := &stubChain{sendResult: "0xdeadbeef"}
	att := &stubAttestation{token: "attestation-token"}
	dispatcher := NewDispatcher(Config{
		AI:          ai,
		Chain:       chain,
		Attestation: att,
		Prompts:     prompts.NewService(),
		ExplorerURL: "https://coston2-explorer.flare.network",
	})
	return &dispatcherFixture{
		dispatcher:  dispatcher,
		ai:          ai,
		chain:       chain,
		attestation: att,
		session:     NewSession("sess-1"),
	}
}

func (f *dispatcherFixture) handle(t *testing.T, message, walletAddress string) string {
	t.Helper()
	reply, err := f.dispatcher.HandleMessage(context.Background(), f.session, message, walletAddress)
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	return reply
}

func TestResetCommandClearsSession(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.session.Queue.Enqueue("send 1.5 FLR", web3.TxPayload{Value: big.NewInt(1)})

	reply := f.handle(t, "/reset", "")
	if reply != "Reset complete" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.Connected() {
		t.Fatalf("expected wallet cleared")
	}
	if f.session.Queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", f.session.Queue.Len())
	}
	if f.ai.resets != 1 {
		t.Fatalf("expected conversational memory reset, got %d", f.ai.resets)
	}

	// 重复重置是幂等的。
	if reply := f.handle(t, "/reset", ""); reply != "Reset complete" {
		t.Fatalf("unexpected reply on second reset: %q", reply)
	}
	if f.session.Connected() || f.session.Queue.Len() != 0 {
		t.Fatalf("second reset must leave the same empty state")
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newDispatcherFixture()

	if reply := f.handle(t, "/selfdestruct", ""); reply != "Unknown command" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestImplicitWalletConnectFailureStops(t *testing.T) {
	f := newDispatcherFixture()

	reply := f.handle(t, "hello", "not-an-address")
	if !strings.HasPrefix(reply, "Failed to connect wallet: ") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.Connected() {
		t.Fatalf("wallet must stay absent after a failed connect")
	}
}

func TestImplicitWalletConnectFallsThrough(t *testing.T) {
	f := newDispatcherFixture()

	reply := f.handle(t, "hello there", testWallet)
	if f.session.WalletAddress != testWallet {
		t.Fatalf("expected wallet connected, got %q", f.session.WalletAddress)
	}
	// 同一条消息在连接成功后继续参与意图分类。
	if reply != "chat: hello there" {
		t.Fatalf("expected conversational fall-through, got %q", reply)
	}
}

func TestConfirmationResolvesExactlyOnce(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	confirmation := "send 1.5 FLR to " + testRecipient
	f.session.Queue.Enqueue(confirmation, web3.TxPayload{To: testRecipient, Value: big.NewInt(1)})

	reply := f.handle(t, confirmation, "")
	if reply != "tx confirmed reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.chain.sendCalls != 1 {
		t.Fatalf("expected one send, got %d", f.chain.sendCalls)
	}
	if f.session.Queue.Len() != 0 {
		t.Fatalf("expected proposal resolved, queue has %d", f.session.Queue.Len())
	}

	// 再次发送相同文本不会重复提交，消息回落到普通对话。
	reply = f.handle(t, confirmation, "")
	if f.chain.sendCalls != 1 {
		t.Fatalf("expected no second send, got %d", f.chain.sendCalls)
	}
	if reply != "chat: "+confirmation {
		t.Fatalf("unexpected reply after resolution: %q", reply)
	}
}

func TestConfirmationOnlyMatchesNewestProposal(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.session.Queue.Enqueue("send 1 FLR", web3.TxPayload{To: testRecipient, Value: big.NewInt(1)})
	f.session.Queue.Enqueue("send 2 FLR", web3.TxPayload{To: testRecipient, Value: big.NewInt(2)})

	// 旧条目的确认文本不再可确认，队列保持不变。
	reply := f.handle(t, "send 1 FLR", "")
	if f.chain.sendCalls != 0 {
		t.Fatalf("expected no send for an inert proposal, got %d", f.chain.sendCalls)
	}
	if f.session.Queue.Len() != 2 {
		t.Fatalf("queue must be untouched, got %d entries", f.session.Queue.Len())
	}
	if reply != "chat: send 1 FLR" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestConfirmationMismatchLeavesQueueUnchanged(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.session.Queue.Enqueue("send 1.5 FLR", web3.TxPayload{To: testRecipient, Value: big.NewInt(1)})

	f.handle(t, "yes please do it", "")
	if f.chain.sendCalls != 0 {
		t.Fatalf("paraphrase must not confirm, got %d sends", f.chain.sendCalls)
	}
	if f.session.Queue.Len() != 1 {
		t.Fatalf("queue must be unchanged, got %d", f.session.Queue.Len())
	}
}

func TestConfirmationFailedSendStillResolves(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.chain.sendErr = xerrors.Wrap(web3.CodeProviderRejected, web3.ErrProviderRejected, "节点拒绝了交易")
	f.session.Queue.Enqueue("send 1.5 FLR", web3.TxPayload{To: testRecipient, Value: big.NewInt(1)})

	reply := f.handle(t, "send 1.5 FLR", "")
	if !strings.HasPrefix(reply, "Unfortunately the tx failed with the error:\n") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	// 失败视为已结算，不会自动重试。
	if f.session.Queue.Len() != 0 {
		t.Fatalf("failed send must still resolve the proposal")
	}
}

func TestConfirmationHandOffPassThrough(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.chain.sendResult = "tx_data:" + testRecipient + ":0x14d1120d7b160000:1500000000000000000"
	f.session.Queue.Enqueue("send 1.5 FLR", web3.TxPayload{To: testRecipient, Value: big.NewInt(1)})

	reply := f.handle(t, "send 1.5 FLR", "")
	if reply != f.chain.sendResult {
		t.Fatalf("hand-off payload must pass through verbatim, got %q", reply)
	}
}

func TestAttestationReplyConsumesFlagOnce(t *testing.T) {
	f := newDispatcherFixture()
	f.session.AttestationRequested = true

	reply := f.handle(t, "my-random-nonce", "")
	if reply != "attestation-token" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.AttestationRequested {
		t.Fatalf("flag must be cleared after the reply turn")
	}
	if f.attestation.calls != 1 {
		t.Fatalf("expected one issuance, got %d", f.attestation.calls)
	}

	// 下一回合不再触发证明守卫。
	f.handle(t, "my-random-nonce", "")
	if f.attestation.calls != 1 {
		t.Fatalf("flag consumed, expected no further issuance")
	}
}

func TestAttestationFailureStillClearsFlag(t *testing.T) {
	f := newDispatcherFixture()
	f.session.AttestationRequested = true
	f.attestation.err = xerrors.New(xerrors.CodeAttestationFailure, "socket unavailable")

	reply := f.handle(t, "my-random-nonce", "")
	if !strings.HasPrefix(reply, "The attestation failed with error:\n") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.AttestationRequested {
		t.Fatalf("flag must be cleared even on failure")
	}
}

func TestClassificationFallsBackToConversational(t *testing.T) {
	f := newDispatcherFixture()

	f.ai.route = "BANANA"
	if reply := f.handle(t, "do something weird", ""); reply != "chat: do something weird" {
		t.Fatalf("unparseable label must degrade to conversation, got %q", reply)
	}
}

func TestClassifierErrorFallsBackToConversational(t *testing.T) {
	f := newDispatcherFixture()

	f.ai.generateErr = xerrors.New(xerrors.CodeGenerationFailure, "provider down")
	reply, err := f.dispatcher.HandleMessage(context.Background(), f.session, "hello", "")
	// 分类失败降级为对话，但后续对话调用不受 generateErr 影响
	// （SendMessage 不经过 Generate）。
	if err != nil {
		t.Fatalf("classification failure must not raise: %v", err)
	}
	if reply != "chat: hello" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestConnectWalletIdempotent(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.ai.route = "CONNECT_WALLET"

	reply := f.handle(t, "connect my wallet", "")
	if reply != "Wallet already connected - "+testWallet {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestConnectWalletExtractsAddress(t *testing.T) {
	f := newDispatcherFixture()
	f.ai.route = "CONNECT_WALLET"
	f.ai.walletJSON = `{"wallet_address": "` + testWallet + `"}`

	reply := f.handle(t, "connect wallet "+testWallet, "")
	if reply != "wallet connected reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.WalletAddress != testWallet {
		t.Fatalf("expected wallet connected, got %q", f.session.WalletAddress)
	}
}

func TestConnectWalletMalformedDegradesToInstructions(t *testing.T) {
	cases := []string{
		`{"wallet_address": ""}`,
		`{"wallet_address": "0x1234...()"}`,
		`not json at all`,
	}
	for _, extraction := range cases {
		f := newDispatcherFixture()
		f.ai.route = "CONNECT_WALLET"
		f.ai.walletJSON = extraction

		reply := f.handle(t, "connect my wallet", "")
		if reply != "connection instructions reply" {
			t.Fatalf("extraction %q: unexpected reply %q", extraction, reply)
		}
		if f.session.Connected() {
			t.Fatalf("extraction %q: wallet must stay absent", extraction)
		}
	}
}

func TestSendTokenRequiresWallet(t *testing.T) {
	f := newDispatcherFixture()
	f.ai.route = "SEND_TOKEN"

	if reply := f.handle(t, "send 1.5 FLR to "+testRecipient, ""); reply != "wallet required reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.Queue.Len() != 0 {
		t.Fatalf("nothing may be enqueued without a wallet")
	}
}

func TestSendTokenZeroAmountAsksFollowUp(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.ai.route = "SEND_TOKEN"
	f.ai.tokenSendJSON = `{"to_address": "0xABC", "amount": 0.0}`

	if reply := f.handle(t, "send some FLR", ""); reply != "follow up reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if f.session.Queue.Len() != 0 {
		t.Fatalf("zero amount must not enqueue a proposal")
	}
}

func TestSendTokenIncompleteExtractionAsksFollowUp(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.ai.route = "SEND_TOKEN"

	cases := []string{
		`{"amount": 1.5}`,
		`{"to_address": "` + testRecipient + `"}`,
		`garbled output`,
	}
	for _, extraction := range cases {
		f.ai.tokenSendJSON = extraction
		if reply := f.handle(t, "send tokens", ""); reply != "follow up reply" {
			t.Fatalf("extraction %q: unexpected reply %q", extraction, reply)
		}
		if f.session.Queue.Len() != 0 {
			t.Fatalf("extraction %q: nothing may be enqueued", extraction)
		}
	}
}

func TestSendTokenEnqueuesProposal(t *testing.T) {
	f := newDispatcherFixture()
	f.session.WalletAddress = testWallet
	f.ai.route = "SEND_TOKEN"
	f.ai.tokenSendJSON = `{"to_address": "` + testRecipient + `", "amount": 1.5}`

	message := "send 1.5 FLR to " + testRecipient
	reply := f.handle(t, message, "")

	if f.session.Queue.Len() != 1 {
		t.Fatalf("expected exactly one proposal, got %d", f.session.Queue.Len())
	}
	proposal, _ := f.session.Queue.PeekLast()
	if proposal.ConfirmationText != message {
		t.Fatalf("confirmation text must equal the triggering message, got %q", proposal.ConfirmationText)
	}
	if proposal.Payload.Value.String() != "1500000000000000000" {
		t.Fatalf("unexpected value: %s", proposal.Payload.Value.String())
	}
	if proposal.Payload.Nonce != 7 || proposal.Payload.ChainID.Int64() != 114 {
		t.Fatalf("payload must carry point-in-time chain state: %+v", proposal.Payload)
	}

	for _, want := range []string{"1.5", testRecipient, "CONFIRM"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("preview missing %q: %q", want, reply)
		}
	}
}

func TestSwapTokenUnsupported(t *testing.T) {
	f := newDispatcherFixture()
	f.ai.route = "SWAP_TOKEN"

	if reply := f.handle(t, "swap 10 FLR to USDC", ""); reply != "wallet required reply" {
		t.Fatalf("unexpected reply without wallet: %q", reply)
	}

	f.session.WalletAddress = testWallet
	if reply := f.handle(t, "swap 10 FLR to USDC", ""); reply != "Sorry I can't do that right now" {
		t.Fatalf("unexpected reply with wallet: %q", reply)
	}
}

func TestAttestationIntentSetsFlag(t *testing.T) {
	f := newDispatcherFixture()
	f.ai.route = "REQUEST_ATTESTATION"

	reply := f.handle(t, "prove you run in an enclave", "")
	if reply != "attestation challenge reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if !f.session.AttestationRequested {
		t.Fatalf("expected attestation flag set")
	}
	if f.attestation.calls != 0 {
		t.Fatalf("issuance must wait for the next turn")
	}
}

func TestParseIntent(t *testing.T) {
	if intent, err := ParseIntent("  send_token \n"); err != nil || intent != IntentSendToken {
		t.Fatalf("expected SEND_TOKEN, got %q err %v", intent, err)
	}
	if _, err := ParseIntent("TRANSFER_EVERYTHING"); err == nil {
		t.Fatalf("expected error for an unknown label")
	}
}

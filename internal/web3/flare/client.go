package flare

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/web3"
)

// Config describes how to construct a Flare (EVM compatible) client.
type Config struct {
	Name string
	// RPCURL is the JSON-RPC endpoint of the node.
	RPCURL string
	// AccountKey optionally holds a hex private key. When set, SendProposal
	// signs server side; otherwise it returns the client-side hand-off.
	AccountKey string
	Notes      string
}

// Client implements the web3.Client interface using go-ethereum.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	signerKey *ecdsa.PrivateKey
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use
// client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}

	var signerKey *ecdsa.PrivateKey
	if key := strings.TrimSpace(cfg.AccountKey); key != "" {
		signerKey, err = crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("解析账户私钥失败: %w", err)
		}
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
		signerKey: signerKey,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChecksumAddress validates raw and returns its EIP-55 checksum form.
func (c *Client) ChecksumAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", xerrors.Wrap(web3.CodeInvalidAddress, web3.ErrInvalidAddress,
			fmt.Sprintf("无效的钱包地址: %q", raw))
	}
	return common.HexToAddress(raw).Hex(), nil
}

// PendingNonce returns the pending transaction count of the address.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("未初始化的链客户端")
	}
	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("查询交易计数失败: %w", err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the current gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	return price, nil
}

// SuggestPriorityFee returns the current priority fee suggestion.
func (c *Client) SuggestPriorityFee(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询优先费失败: %w", err)
	}
	return tip, nil
}

// ChainID returns the chain identifier of the connected network.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询链 ID 失败: %w", err)
	}
	return id, nil
}

// BalanceAt returns the native-token balance of the address in wei.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的链客户端")
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("查询链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("查询最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// SendProposal submits the payload. Without a configured signer key the
// transaction data is handed back for the wallet extension to sign.
func (c *Client) SendProposal(ctx context.Context, payload web3.TxPayload) (string, error) {
	if payload.Value == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "交易金额不能为空")
	}

	if c == nil || c.signerKey == nil {
		return clientSideHandOff(payload), nil
	}
	if c.eth == nil {
		return "", errors.New("未初始化的链客户端")
	}

	to := common.HexToAddress(payload.To)
	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   payload.ChainID,
		Nonce:     payload.Nonce,
		GasTipCap: payload.MaxPriorityFeePerGas,
		GasFeeCap: payload.MaxFeePerGas,
		Gas:       payload.Gas,
		To:        &to,
		Value:     payload.Value,
	})

	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(payload.ChainID), c.signerKey)
	if err != nil {
		return "", fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", xerrors.Wrap(web3.CodeProviderRejected, err, "节点拒绝了交易")
	}
	return signed.Hash().Hex(), nil
}

// clientSideHandOff keeps the hex value alongside the decimal one to preserve
// precision for the wallet extension.
func clientSideHandOff(payload web3.TxPayload) string {
	return fmt.Sprintf("%s%s:0x%s:%s",
		web3.ClientSideDataPrefix, payload.To, payload.Value.Text(16), payload.Value.String())
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

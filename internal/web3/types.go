package web3

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"

	xerrors "DeFAI-Agent/internal/errors"
)

// ClientSideDataPrefix marks a send result that must be finished by the
// caller's wallet extension instead of the node. The payload after the prefix
// is opaque to this system and forwarded verbatim.
const ClientSideDataPrefix = "tx_data:"

// Error codes produced by chain clients.
const (
	CodeInvalidAddress   xerrors.Code = "INVALID_ADDRESS"
	CodeProviderRejected xerrors.Code = "PROVIDER_REJECTED"
)

var (
	// ErrInvalidAddress indicates the supplied address is not a valid
	// hex-encoded EVM address.
	ErrInvalidAddress = xerrors.New(CodeInvalidAddress, "invalid address")
	// ErrProviderRejected indicates the RPC provider refused a transaction.
	ErrProviderRejected = xerrors.New(CodeProviderRejected, "provider rejected transaction")
)

func init() {
	xerrors.Register(CodeInvalidAddress, xerrors.Attributes{
		Message:   "invalid address",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeProviderRejected, xerrors.Attributes{
		Message:   "provider rejected transaction",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// TxPayload is a chain-agnostic description of a native-token transfer. All
// dynamic fields (nonce, fees, chain id) are read from the chain at
// construction time and never cached across turns.
type TxPayload struct {
	From                 string
	To                   string
	Value                *big.Int
	Nonce                uint64
	Gas                  uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	ChainID              *big.Int
	Type                 uint8
}

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Client defines the chain interface consumed by the dispatcher. All reads
// are point-in-time; implementations must not cache nonce or fee data.
type Client interface {
	// ChecksumAddress validates raw and returns its EIP-55 form.
	ChecksumAddress(raw string) (string, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestPriorityFee(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	// SendProposal submits the payload. It returns a transaction hash, or a
	// ClientSideDataPrefix hand-off when signing must happen client side.
	SendProposal(ctx context.Context, payload TxPayload) (string, error)
	Close()
}

// ToWei converts a decimal native-token amount to wei.
func ToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(params.Ether)).Int(nil)
	return wei
}

// FromWei renders a wei amount as a decimal native-token string with
// insignificant zeros trimmed.
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	text := value.Text('f', 18)
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}

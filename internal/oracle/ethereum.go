package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"giro/pkg/platform/sentinel"
)

// ERC-721 Enumerable selectors, computed once.
var (
	selectorBalanceOf           = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selectorTokenOfOwnerByIndex = crypto.Keccak256([]byte("tokenOfOwnerByIndex(address,uint256)"))[:4]
)

const maxCallRetries = 3

// ContractCaller is the slice of ethclient.Client this package needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthereumOracle checks eligibility-token ownership against an ERC-721
// contract over JSON-RPC.
type EthereumOracle struct {
	caller   ContractCaller
	contract common.Address
	timeout  time.Duration
}

// Dial connects to the RPC endpoint and wraps it as an Oracle.
func Dial(ctx context.Context, rpcURL, contractAddress string, timeout time.Duration) (*EthereumOracle, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial oracle rpc: %w", err)
	}
	return NewEthereumOracle(client, contractAddress, timeout), nil
}

// NewEthereumOracle wraps an existing caller; tests inject fakes here.
func NewEthereumOracle(caller ContractCaller, contractAddress string, timeout time.Duration) *EthereumOracle {
	return &EthereumOracle{
		caller:   caller,
		contract: common.HexToAddress(contractAddress),
		timeout:  timeout,
	}
}

// HolderToken queries balanceOf(holder) and, when positive,
// tokenOfOwnerByIndex(holder, 0). Transient transport failures are retried a
// bounded number of times and then surfaced as unavailable, never as a silent
// "no token".
func (o *EthereumOracle) HolderToken(ctx context.Context, holderAddress string) (string, bool, error) {
	holder := common.HexToAddress(holderAddress)

	balance, err := o.call(ctx, packAddressCall(selectorBalanceOf, holder))
	if err != nil {
		return "", false, fmt.Errorf("oracle balanceOf: %w: %w", sentinel.ErrUnavailable, err)
	}
	if balance.Sign() == 0 {
		return "", false, nil
	}

	data := packAddressCall(selectorTokenOfOwnerByIndex, holder)
	data = append(data, common.LeftPadBytes(big.NewInt(0).Bytes(), 32)...)
	tokenID, err := o.call(ctx, data)
	if err != nil {
		return "", false, fmt.Errorf("oracle tokenOfOwnerByIndex: %w: %w", sentinel.ErrUnavailable, err)
	}
	return tokenID.String(), true, nil
}

func (o *EthereumOracle) call(ctx context.Context, data []byte) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msg := ethereum.CallMsg{To: &o.contract, Data: data}

	var out []byte
	operation := func() error {
		var err error
		out, err = o.caller.CallContract(ctx, msg, nil)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxCallRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	if len(out) != 32 {
		return nil, fmt.Errorf("unexpected oracle response length %d", len(out))
	}
	return new(big.Int).SetBytes(out), nil
}

func packAddressCall(selector []byte, addr common.Address) []byte {
	data := make([]byte, 0, 36)
	data = append(data, selector...)
	return append(data, common.LeftPadBytes(addr.Bytes(), 32)...)
}

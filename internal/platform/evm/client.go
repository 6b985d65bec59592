// Package evm implements the vault's chain collaborators (custody asset,
// swap venue, bridge, position token) against JSON-RPC via go-ethereum.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	receiptPollInterval = 2 * time.Second
	receiptWaitTimeout  = 3 * time.Minute
)

// Client wraps an ethclient connection with the vault's signing key and
// the send-and-wait transaction plumbing shared by all contract adapters.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewClient dials rpcURL and derives the vault account from a hex-encoded
// secp256k1 private key.
func NewClient(ctx context.Context, rpcURL, privateKeyHex string, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: invalid private key: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}

	return &Client{
		eth:     eth,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger.With(slog.String("component", "evm")),
	}, nil
}

// From returns the vault account address derived from the signing key.
func (c *Client) From() common.Address { return c.from }

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// call executes a read-only contract call.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
}

// transact signs, sends, and waits for a contract transaction, returning
// the mined receipt. A reverted execution is an error.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w", err)
	}

	gasTipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas tip: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: head: %w", err)
	}
	// cap = 2*baseFee + tip leaves headroom for base-fee movement while
	// the transaction is pending.
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:      c.from,
		To:        &to,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("evm: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("evm: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: send tx: %w", err)
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("evm: tx %s reverted", signed.Hash())
	}

	c.logger.DebugContext(ctx, "transaction mined",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// waitMined polls for the transaction receipt until found, timeout, or
// context cancellation.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("evm: wait for tx %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// parseAddr converts a hex string address, accepting mixed case.
func parseAddr(s string) common.Address {
	return common.HexToAddress(s)
}

// addrString returns the canonical lowercase hex form used by the domain
// layer.
func addrString(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Copyright 2025 Lantern Protocol
//
// EthereumAnchorBackend is a supplemental anchor backend (spec §9,
// not named by the distilled spec but carried forward because the
// example pack's dependency surface provides a full go-ethereum
// client): it publishes anchor_hash as calldata on a configured EVM
// chain via a single-purpose "anchor store" contract, giving a public,
// permissionless second witness alongside RFC 3161/object-store
// anchors. Grounded on pkg/ethereum/client.go's contract-transaction
// helpers and pkg/anchor/anchor_manager.go's retry/gas-escalation loop.

package anchor

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lanternledger/ledger/internal/canon"
)

// anchorStoreABI is the minimal ABI for a contract exposing
// publishAnchor(bytes32 anchorHash, string checkpointId).
const anchorStoreABI = `[
	{
		"inputs": [
			{"name": "anchorHash", "type": "bytes32"},
			{"name": "checkpointId", "type": "string"}
		],
		"name": "publishAnchor",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// EthereumAnchorBackend publishes anchor_hash as on-chain calldata.
type EthereumAnchorBackend struct {
	client          *ethclient.Client
	chainID         *big.Int
	contractAddress common.Address
	privateKeyHex   string
	gasLimit        uint64
	maxRetries      int
}

// NewEthereumAnchorBackend dials url and returns a backend targeting
// contractAddress on the given chain.
func NewEthereumAnchorBackend(url string, chainID int64, contractAddress, privateKeyHex string, gasLimit uint64) (*EthereumAnchorBackend, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum anchor backend: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = 100000
	}
	return &EthereumAnchorBackend{
		client:          client,
		chainID:         big.NewInt(chainID),
		contractAddress: common.HexToAddress(contractAddress),
		privateKeyHex:   privateKeyHex,
		gasLimit:        gasLimit,
		maxRetries:      5,
	}, nil
}

func (b *EthereumAnchorBackend) Type() string { return "ethereum" }

func (b *EthereumAnchorBackend) Publish(ctx context.Context, in PublishInput) (string, []byte, error) {
	var anchorHash [32]byte
	copy(anchorHash[:], canon.SHA256Raw(in.Payload))

	contractABI, err := abi.JSON(strings.NewReader(anchorStoreABI))
	if err != nil {
		return "", nil, fmt.Errorf("parse anchor store abi: %w", err)
	}
	callData, err := contractABI.Pack("publishAnchor", anchorHash, in.CheckpointID)
	if err != nil {
		return "", nil, fmt.Errorf("pack publishAnchor call: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(b.privateKeyHex, "0x"))
	if err != nil {
		return "", nil, fmt.Errorf("parse anchor backend private key: %w", err)
	}
	fromAddress := crypto.PubkeyToAddress(*privateKey.Public().(*ecdsa.PublicKey))

	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		nonce, err := b.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return "", nil, fmt.Errorf("get nonce: %w", err)
		}
		gasPrice, err := b.client.SuggestGasPrice(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("suggest gas price: %w", err)
		}
		if attempt > 0 {
			multiplier := big.NewInt(int64(100 + 20*attempt))
			gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, multiplier), big.NewInt(100))
		}

		tx := types.NewTransaction(nonce, b.contractAddress, big.NewInt(0), b.gasLimit, gasPrice, callData)
		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(b.chainID), privateKey)
		if err != nil {
			return "", nil, fmt.Errorf("sign anchor tx: %w", err)
		}

		if err := b.client.SendTransaction(ctx, signedTx); err != nil {
			lastErr = err
			if attempt < b.maxRetries-1 && retryable(err) {
				continue
			}
			return "", nil, fmt.Errorf("send anchor tx: %w", err)
		}

		receipt, err := bind.WaitMined(ctx, b.client, signedTx)
		if err != nil {
			return "", nil, fmt.Errorf("wait for anchor tx: %w", err)
		}

		anchorID := signedTx.Hash().Hex()
		proof := struct {
			TxHash          string    `json:"tx_hash"`
			BlockNumber     uint64    `json:"block_number"`
			BlockHash       string    `json:"block_hash"`
			GasUsed         uint64    `json:"gas_used"`
			ContractAddress string    `json:"contract_address"`
			ConfirmedAt     time.Time `json:"confirmed_at"`
			Success         bool      `json:"success"`
		}{
			TxHash:          anchorID,
			BlockNumber:     receipt.BlockNumber.Uint64(),
			BlockHash:       receipt.BlockHash.Hex(),
			GasUsed:         receipt.GasUsed,
			ContractAddress: b.contractAddress.Hex(),
			ConfirmedAt:     time.Now().UTC(),
			Success:         receipt.Status == types.ReceiptStatusSuccessful,
		}
		proofBytes, err := json.Marshal(proof)
		if err != nil {
			return "", nil, err
		}
		return anchorID, proofBytes, nil
	}
	return "", nil, fmt.Errorf("send anchor tx after %d attempts: %w", b.maxRetries, lastErr)
}

func retryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already known")
}

// Package sepolia anchors evidence hashes to the ChainProofAnchor contract
// on the Sepolia testnet.
package sepolia

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const AnchorABI = `[
 {"type":"function","name":"anchorHash","stateMutability":"nonpayable",
  "inputs":[{"name":"evidenceId","type":"bytes32"},{"name":"fileHash","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"getAnchor","stateMutability":"view",
  "inputs":[{"name":"evidenceId","type":"bytes32"}],
  "outputs":[{"name":"fileHash","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"submitter","type":"address"}]},
 {"type":"function","name":"verifyHash","stateMutability":"view",
  "inputs":[{"name":"evidenceId","type":"bytes32"},{"name":"fileHashToVerify","type":"bytes32"}],
  "outputs":[{"name":"valid","type":"bool"},{"name":"storedHash","type":"bytes32"},{"name":"anchorTimestamp","type":"uint256"}]},
 {"type":"function","name":"isAnchored","stateMutability":"view",
  "inputs":[{"name":"evidenceId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"event","name":"HashAnchored","anonymous":false,
  "inputs":[{"name":"evidenceId","type":"bytes32","indexed":true},{"name":"fileHash","type":"bytes32","indexed":true},
            {"name":"timestamp","type":"uint256","indexed":false},{"name":"submitter","type":"address","indexed":false}]}
]`

const (
	CacheTTL            = 7 * 24 * time.Hour
	DefaultExplorerBase = "https://sepolia.etherscan.io/tx/"
)

var ErrNotConfigured = errors.New("sepolia not configured")

type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
}

// EvidenceIDToBytes32 is the on-chain key for an evidence id.
func EvidenceIDToBytes32(evidenceID string) [32]byte {
	return crypto.Keccak256Hash([]byte(evidenceID))
}

// FileHashToBytes32 decodes a hex digest, with or without 0x, and left-pads
// it to 32 bytes.
func FileHashToBytes32(fileHash string) ([32]byte, error) {
	var out [32]byte
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(fileHash), "0x"), "0X")
	if h == "" {
		return out, errors.New("file hash is empty")
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return out, fmt.Errorf("file hash is not hex: %w", err)
	}
	if len(b) > 32 {
		return out, fmt.Errorf("file hash is %d bytes, want at most 32", len(b))
	}
	copy(out[32-len(b):], b)
	return out, nil
}

type AnchorReceipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	Timestamp   int64  `json:"timestamp"`
	ExplorerURL string `json:"explorerUrl"`
}

type Anchor struct {
	FileHash   string `json:"fileHash"`
	Timestamp  int64  `json:"timestamp"`
	Submitter  string `json:"submitter"`
	AnchoredAt string `json:"anchoredAt"`
}

type Verification struct {
	Valid           bool   `json:"valid"`
	StoredHash      string `json:"storedHash"`
	AnchorTimestamp int64  `json:"anchorTimestamp"`
	AnchoredAt      string `json:"anchoredAt"`
}

// Contract is the subset of *bind.BoundContract the client drives.
type Contract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

type Client struct {
	contract     Contract
	key          *ecdsa.PrivateKey
	chainID      func(ctx context.Context) (*big.Int, error)
	waitMined    func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	cache        *cache.Cache
	logger       *zap.Logger
	ExplorerBase string
	Now          func() time.Time

	mu       sync.Mutex
	chainIDv *big.Int
}

// Dial connects to the configured RPC endpoint. A missing RPC URL or
// contract address yields an unconfigured client whose reads report
// ErrNotConfigured; a missing private key yields a read-only client.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := newClient(nil, nil, logger)
	if strings.TrimSpace(cfg.RPCURL) == "" {
		logger.Warn("SEPOLIA_RPC_URL not configured; anchoring disabled")
		return c, nil
	}
	if strings.TrimSpace(cfg.ContractAddress) == "" {
		logger.Warn("ANCHOR_CONTRACT_ADDRESS not configured; deploy the anchor contract first")
		return c, nil
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid ANCHOR_CONTRACT_ADDRESS %q", cfg.ContractAddress)
	}
	var key *ecdsa.PrivateKey
	if pk := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"); pk != "" {
		k, err := crypto.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("parse DEPLOYER_PRIVATE_KEY: %w", err)
		}
		key = k
	}

	parsed, err := abi.JSON(strings.NewReader(AnchorABI))
	if err != nil {
		return nil, fmt.Errorf("parse anchor abi: %w", err)
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial sepolia rpc: %w", err)
	}
	bound := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, ec, ec, ec)
	c = newClient(bound, key, logger)
	c.chainID = ec.ChainID
	c.waitMined = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, ec, tx)
	}
	mode := "read-only"
	if key != nil {
		mode = "read-write"
	}
	logger.Info("sepolia connection initialized", zap.String("contract", cfg.ContractAddress), zap.String("mode", mode))
	return c, nil
}

func newClient(contract Contract, key *ecdsa.PrivateKey, logger *zap.Logger) *Client {
	return &Client{
		contract:     contract,
		key:          key,
		cache:        cache.New(CacheTTL, time.Hour),
		logger:       logger,
		ExplorerBase: DefaultExplorerBase,
		Now:          time.Now,
	}
}

func (c *Client) Configured() bool { return c != nil && c.contract != nil }

func (c *Client) CanWrite() bool { return c.Configured() && c.key != nil }

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainIDv != nil {
		return c.chainIDv, nil
	}
	if c.chainID == nil {
		return nil, errors.New("chain id source missing")
	}
	id, err := c.chainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	c.chainIDv = id
	return id, nil
}

// AnchorHash records fileHash under evidenceID and blocks until the
// transaction is mined.
func (c *Client) AnchorHash(ctx context.Context, evidenceID, fileHash string) (*AnchorReceipt, error) {
	if !c.CanWrite() {
		return nil, fmt.Errorf("%w for write operations: add DEPLOYER_PRIVATE_KEY", ErrNotConfigured)
	}
	fh, err := FileHashToBytes32(fileHash)
	if err != nil {
		return nil, err
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	c.logger.Info("anchoring evidence", zap.String("evidence_id", evidenceID))
	tx, err := c.contract.Transact(opts, "anchorHash", EvidenceIDToBytes32(evidenceID), fh)
	if err != nil {
		return nil, fmt.Errorf("send anchor tx: %w", err)
	}
	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for anchor tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("anchor tx %s reverted", receipt.TxHash.Hex())
	}
	c.cache.Delete(evidenceID)
	out := &AnchorReceipt{
		TxHash:      receipt.TxHash.Hex(),
		GasUsed:     receipt.GasUsed,
		Timestamp:   c.Now().UnixMilli(),
		ExplorerURL: c.ExplorerBase + receipt.TxHash.Hex(),
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	c.logger.Info("anchored", zap.String("tx", out.TxHash), zap.Uint64("block", out.BlockNumber))
	return out, nil
}

// GetAnchor returns nil when the evidence was never anchored.
func (c *Client) GetAnchor(ctx context.Context, evidenceID string) (*Anchor, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if v, ok := c.cache.Get(evidenceID); ok {
		a := v.(Anchor)
		return &a, nil
	}
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAnchor", EvidenceIDToBytes32(evidenceID))
	if err != nil {
		if strings.Contains(err.Error(), "Evidence not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("getAnchor: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("getAnchor: unexpected %d outputs", len(out))
	}
	stored, ok1 := out[0].([32]byte)
	ts, ok2 := out[1].(*big.Int)
	submitter, ok3 := out[2].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("getAnchor: unexpected output types")
	}
	if ts.Sign() == 0 {
		return nil, nil
	}
	a := Anchor{
		FileHash:   "0x" + hex.EncodeToString(stored[:]),
		Timestamp:  ts.Int64(),
		Submitter:  submitter.Hex(),
		AnchoredAt: time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339),
	}
	c.cache.SetDefault(evidenceID, a)
	return &a, nil
}

func (c *Client) VerifyAnchor(ctx context.Context, evidenceID, fileHash string) (*Verification, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	fh, err := FileHashToBytes32(fileHash)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "verifyHash", EvidenceIDToBytes32(evidenceID), fh); err != nil {
		return nil, fmt.Errorf("verifyHash: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("verifyHash: unexpected %d outputs", len(out))
	}
	valid, ok1 := out[0].(bool)
	stored, ok2 := out[1].([32]byte)
	ts, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("verifyHash: unexpected output types")
	}
	return &Verification{
		Valid:           valid,
		StoredHash:      "0x" + hex.EncodeToString(stored[:]),
		AnchorTimestamp: ts.Int64(),
		AnchoredAt:      time.Unix(ts.Int64(), 0).UTC().Format(time.RFC3339),
	}, nil
}

// IsAnchored reports false when the client is not configured.
func (c *Client) IsAnchored(ctx context.Context, evidenceID string) (bool, error) {
	if !c.Configured() {
		return false, nil
	}
	if _, ok := c.cache.Get(evidenceID); ok {
		return true, nil
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isAnchored", EvidenceIDToBytes32(evidenceID)); err != nil {
		return false, fmt.Errorf("isAnchored: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("isAnchored: unexpected %d outputs", len(out))
	}
	anchored, _ := out[0].(bool)
	return anchored, nil
}

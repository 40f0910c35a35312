package sepolia

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeContract struct {
	calls    map[string]int
	anchors  map[[32]byte][32]byte
	ts       int64
	from     common.Address
	callErr  error
	submitTo common.Address
}

func newFakeContract() *fakeContract {
	return &fakeContract{calls: map[string]int{}, anchors: map[[32]byte][32]byte{}, ts: 1767225600}
}

func (f *fakeContract) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	f.calls[method]++
	if f.callErr != nil {
		return f.callErr
	}
	id := params[0].([32]byte)
	stored, ok := f.anchors[id]
	switch method {
	case "getAnchor":
		if !ok {
			return errors.New("execution reverted: Evidence not found")
		}
		*results = []interface{}{stored, big.NewInt(f.ts), f.from}
	case "verifyHash":
		*results = []interface{}{ok && stored == params[1].([32]byte), stored, big.NewInt(f.ts)}
	case "isAnchored":
		*results = []interface{}{ok}
	}
	return nil
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	f.calls[method]++
	f.from = opts.From
	f.anchors[params[0].([32]byte)] = params[1].([32]byte)
	return types.NewTx(&types.LegacyTx{Nonce: 1, To: &f.submitTo, Gas: 50000, GasPrice: big.NewInt(1)}), nil
}

func newTestClient(t *testing.T, withKey bool) (*Client, *fakeContract) {
	t.Helper()
	fc := newFakeContract()
	var c *Client
	if withKey {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		c = newClient(fc, key, zap.NewNop())
	} else {
		c = newClient(fc, nil, zap.NewNop())
	}
	c.chainID = func(context.Context) (*big.Int, error) { return big.NewInt(11155111), nil }
	c.waitMined = func(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(42), GasUsed: 48000}, nil
	}
	c.Now = func() time.Time { return time.UnixMilli(1767225600123) }
	return c, fc
}

func TestFileHashToBytes32(t *testing.T) {
	b, err := FileHashToBytes32("0xabcd")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), b[30])
	assert.Equal(t, byte(0xcd), b[31])
	assert.Equal(t, byte(0), b[0])

	full := strings.Repeat("11", 32)
	b, err = FileHashToBytes32(full)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), b[0])

	_, err = FileHashToBytes32(strings.Repeat("11", 33))
	require.ErrorContains(t, err, "33 bytes")
	_, err = FileHashToBytes32("zz")
	require.Error(t, err)
	_, err = FileHashToBytes32("")
	require.Error(t, err)
}

func TestEvidenceIDToBytes32IsKeccak(t *testing.T) {
	want := crypto.Keccak256([]byte("EVD-1A2B3C4D"))
	got := EvidenceIDToBytes32("EVD-1A2B3C4D")
	assert.Equal(t, want, got[:])
}

func TestAnchorThenReadBack(t *testing.T) {
	c, fc := newTestClient(t, true)
	ctx := context.Background()
	hash := strings.Repeat("ab", 32)

	rcpt, err := c.AnchorHash(ctx, "EVD-1", hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rcpt.BlockNumber)
	assert.Equal(t, uint64(48000), rcpt.GasUsed)
	assert.Equal(t, int64(1767225600123), rcpt.Timestamp)
	assert.Equal(t, DefaultExplorerBase+rcpt.TxHash, rcpt.ExplorerURL)
	assert.Equal(t, crypto.PubkeyToAddress(c.key.PublicKey), fc.from)

	a, err := c.GetAnchor(ctx, "EVD-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "0x"+hash, a.FileHash)
	assert.Equal(t, "2026-01-01T00:00:00Z", a.AnchoredAt)

	_, err = c.GetAnchor(ctx, "EVD-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls["getAnchor"], "second read should hit the cache")

	ok, err := c.IsAnchored(ctx, "EVD-1")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := c.VerifyAnchor(ctx, "EVD-1", "0x"+hash)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	v, err = c.VerifyAnchor(ctx, "EVD-1", strings.Repeat("cd", 32))
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestGetAnchorMissingReturnsNil(t *testing.T) {
	c, _ := newTestClient(t, false)
	a, err := c.GetAnchor(context.Background(), "EVD-NONE")
	require.NoError(t, err)
	assert.Nil(t, a)

	ok, err := c.IsAnchored(context.Background(), "EVD-NONE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadOnlyAndUnconfigured(t *testing.T) {
	c, _ := newTestClient(t, false)
	assert.True(t, c.Configured())
	assert.False(t, c.CanWrite())
	_, err := c.AnchorHash(context.Background(), "EVD-1", "ab")
	require.ErrorIs(t, err, ErrNotConfigured)

	off, err := Dial(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.False(t, off.Configured())
	_, err = off.GetAnchor(context.Background(), "EVD-1")
	require.ErrorIs(t, err, ErrNotConfigured)
	ok, err := off.IsAnchored(context.Background(), "EVD-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Dial(context.Background(), Config{RPCURL: "http://127.0.0.1:8545", ContractAddress: "not-an-address"}, nil)
	require.ErrorContains(t, err, "invalid ANCHOR_CONTRACT_ADDRESS")
}

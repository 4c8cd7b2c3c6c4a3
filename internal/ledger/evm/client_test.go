package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/carbon-credits/internal/ledger"
)

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")

func newTestClient(t *testing.T) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := New(nil, contractAddr, key, big.NewInt(31337))
	require.NoError(t, err)
	return c
}

func TestClient_From(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := New(nil, contractAddr, key, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.From())
}

func TestDecodeReceipt_ClaimSubmitted(t *testing.T) {
	c := newTestClient(t)
	org := common.HexToAddress("0x1111111111111111111111111111111111111111")

	ev := c.abi.Events[ledger.EventClaimSubmitted]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(100))
	require.NoError(t, err)

	rcpt := &types.Receipt{
		TxHash: common.HexToHash("0xabc"),
		Logs: []*types.Log{
			{
				Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
				Topics:  []common.Hash{ev.ID},
			},
			{
				Address: contractAddr,
				Topics:  []common.Hash{common.HexToHash("0xdead")},
			},
			{
				Address: contractAddr,
				Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(7)), common.BytesToHash(org.Bytes())},
				Data:    data,
			},
		},
	}

	out, err := c.decodeReceipt(rcpt)
	require.NoError(t, err)
	assert.Equal(t, rcpt.TxHash.Hex(), out.TxHash)
	require.Len(t, out.Events, 1)

	events := out.EventsNamed(ledger.EventClaimSubmitted)
	require.Len(t, events, 1)
	id, ok := events[0].BigField("claimId")
	require.True(t, ok)
	assert.Equal(t, int64(7), id.Int64())
	demanded, ok := events[0].BigField("demandedTokens")
	require.True(t, ok)
	assert.Equal(t, int64(100), demanded.Int64())
	assert.Equal(t, org, events[0].Fields["organization"])
}

func TestRevertReason_FallsBackToErrorText(t *testing.T) {
	err := errors.New("execution reverted: Insufficient balance")
	assert.Equal(t, "execution reverted: Insufficient balance", revertReason(err))
}

type dataError struct {
	data string
}

func (e dataError) Error() string          { return "execution reverted" }
func (e dataError) ErrorData() interface{} { return e.data }

func TestRevertReason_DecodesErrorData(t *testing.T) {
	// Error(string) selector followed by the ABI-encoded "Request is not pending".
	reason := "Request is not pending"
	payload := append(common.FromHex("0x08c379a0"), mustPackString(t, reason)...)
	err := dataError{data: common.Bytes2Hex(payload)}
	assert.Equal(t, "execution reverted: "+reason, revertReason(err))
}

func mustPackString(t *testing.T, s string) []byte {
	t.Helper()
	typ, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: typ}}.Pack(s)
	require.NoError(t, err)
	return packed
}

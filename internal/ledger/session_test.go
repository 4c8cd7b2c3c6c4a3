package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWithActor(t *testing.T) {
	base := NewSession(nil, common.HexToAddress("0x00000000000000000000000000000000000000a1"))

	acting := base.WithActor("user-7")
	require.NotNil(t, acting)
	assert.Equal(t, "user-7", acting.Actor)
	assert.Equal(t, base.Address, acting.Address)
	assert.Empty(t, base.Actor)

	var none *Session
	assert.Nil(t, none.WithActor("user-7"))
	assert.False(t, none.WithActor("user-7").Connected())
}

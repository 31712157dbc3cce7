package wallet

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ruteri/credential-registry-client/interfaces"
)

func TestReduce(t *testing.T) {
	owner := ownerAddr
	connected := State{
		Status:  StatusConnected,
		Account: &owner,
		ChainID: big.NewInt(11155111),
		Owner:   &owner,
		Balance: big.NewInt(5),
		Message: MessageConnected,
	}

	t.Run("disconnect clears everything", func(t *testing.T) {
		s := reduce(connected, disconnected{message: MessageDisconnected})
		assert.Equal(t, State{Status: StatusDisconnected, Message: MessageDisconnected}, s)
		assert.Equal(t, StatusConnected, connected.Status, "input state must not change")
	})

	t.Run("details", func(t *testing.T) {
		s := reduce(State{}, detailsLoaded{owner: &owner, balance: big.NewInt(7)})
		assert.Equal(t, int64(7), s.Balance.Int64())
		assert.False(t, s.IsOwner(), "no account selected")
	})

	t.Run("wrong network", func(t *testing.T) {
		netErr := &interfaces.WrongNetworkError{Got: big.NewInt(1), Want: big.NewInt(11155111)}
		s := reduce(connected, wrongNetwork{account: accountA, err: netErr})
		assert.Equal(t, StatusWrongNetwork, s.Status)
		assert.Nil(t, s.Binding)
		assert.Nil(t, s.Owner)
		assert.Equal(t, accountA, *s.Account)
		assert.Equal(t, netErr.Error(), s.Message)
	})

	t.Run("failed connect without binding", func(t *testing.T) {
		s := reduce(connected, connectStarted{})
		assert.Equal(t, StatusConnecting, s.Status)
		s = reduce(s, connectFailed{message: MessageRejected})
		assert.Equal(t, StatusDisconnected, s.Status, "no binding to fall back to")
		assert.Equal(t, MessageRejected, s.Message)
	})

	t.Run("failed account switch drops the old binding", func(t *testing.T) {
		s := reduce(connected, switchFailed{account: accountB, message: "Could not connect wallet: locked"})
		assert.Equal(t, StatusDisconnected, s.Status)
		assert.Equal(t, accountB, *s.Account)
		assert.Nil(t, s.Binding)
		assert.Nil(t, s.Owner)
		assert.Nil(t, s.Balance)
		assert.False(t, s.Connected())
		assert.Equal(t, "Could not connect wallet: locked", s.Message)
	})

	t.Run("reload", func(t *testing.T) {
		assert.Equal(t, State{Status: StatusDisconnected}, reduce(connected, reloaded{}))
	})
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "wrong_network", StatusWrongNetwork.String())
	text, err := StatusConnected.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "connected", string(text))
}

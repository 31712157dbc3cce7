package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/registry"
)

// Status is the connection status of a session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusWrongNetwork
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusWrongNetwork:
		return "wrong_network"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Messages shown for session transitions.
const (
	MessageConnected    = "Wallet connected."
	MessageDisconnected = "Wallet disconnected."
	MessageNoProvider   = "No wallet provider detected. Please install or configure a wallet."
	MessageRejected     = "Wallet connection request was rejected."
)

// State is a snapshot of the session. Binding is non-nil only when Account is set and
// the provider is on the deployment network.
type State struct {
	Status  Status
	Account *common.Address
	ChainID *big.Int
	Binding *registry.Binding

	// Owner and Balance are fetched once per binding.
	Owner   *common.Address
	Balance *big.Int

	NetworkErr *interfaces.WrongNetworkError
	Message    string
}

// IsOwner reports whether the active account owns the registry contract.
func (s State) IsOwner() bool {
	return s.Account != nil && s.Owner != nil && *s.Account == *s.Owner
}

// Connected reports whether the session holds a usable binding.
func (s State) Connected() bool {
	return s.Status == StatusConnected && s.Binding != nil
}

// action is a session transition applied by reduce.
type action interface {
	isAction()
}

type (
	connectStarted struct{}

	bound struct {
		binding *registry.Binding
		rebuilt bool
	}

	detailsLoaded struct {
		owner   *common.Address
		balance *big.Int
	}

	wrongNetwork struct {
		account common.Address
		err     *interfaces.WrongNetworkError
	}

	connectFailed struct {
		message string
	}

	switchFailed struct {
		account common.Address
		message string
	}

	disconnected struct {
		message string
	}

	reloaded struct{}
)

func (connectStarted) isAction() {}
func (bound) isAction()          {}
func (detailsLoaded) isAction()  {}
func (wrongNetwork) isAction()   {}
func (connectFailed) isAction()  {}
func (switchFailed) isAction()   {}
func (disconnected) isAction()   {}
func (reloaded) isAction()       {}

// reduce returns the state following s after a. It never mutates s.
func reduce(s State, a action) State {
	switch a := a.(type) {
	case connectStarted:
		s.Status = StatusConnecting
		s.Message = ""
		return s

	case bound:
		account := a.binding.Account()
		s.Status = StatusConnected
		s.Account = &account
		s.ChainID = a.binding.ChainID()
		s.Binding = a.binding
		s.NetworkErr = nil
		s.Message = MessageConnected
		if a.rebuilt {
			s.Owner = nil
			s.Balance = nil
		}
		return s

	case detailsLoaded:
		s.Owner = a.owner
		s.Balance = a.balance
		return s

	case wrongNetwork:
		account := a.account
		return State{
			Status:     StatusWrongNetwork,
			Account:    &account,
			ChainID:    new(big.Int).Set(a.err.Got),
			NetworkErr: a.err,
			Message:    a.err.Error(),
		}

	case connectFailed:
		switch {
		case s.Binding != nil:
			s.Status = StatusConnected
		case s.Status != StatusWrongNetwork:
			s.Status = StatusDisconnected
		}
		s.Message = a.message
		return s

	case switchFailed:
		account := a.account
		return State{Status: StatusDisconnected, Account: &account, Message: a.message}

	case disconnected:
		return State{Status: StatusDisconnected, Message: a.message}

	case reloaded:
		return State{Status: StatusDisconnected}
	}
	return s
}

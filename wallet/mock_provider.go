package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// MockProvider is a scripted wallet provider for tests and dry runs. It exposes a fixed
// account list once access has been granted and emits change notifications when the
// script changes accounts or networks.
type MockProvider struct {
	mutex      sync.Mutex
	accounts   []common.Address
	authorized bool
	chainID    *big.Int
	balances   map[common.Address]*big.Int
	requestErr error
	calls      map[string]int

	accountsFeed event.Feed
	chainFeed    event.Feed
}

// NewMockProvider creates a provider on chainID exposing accounts.
func NewMockProvider(chainID *big.Int, accounts ...common.Address) *MockProvider {
	return &MockProvider{
		accounts: accounts,
		chainID:  new(big.Int).Set(chainID),
		balances: make(map[common.Address]*big.Int),
		calls:    make(map[string]int),
	}
}

func (p *MockProvider) count(method string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.calls[method]++
}

// CallCount returns the number of calls of the named method.
func (p *MockProvider) CallCount(method string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.calls[method]
}

// SetRequestError makes RequestAccounts fail with err, nil restores normal behaviour.
func (p *MockProvider) SetRequestError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.requestErr = err
}

// SetBalance sets the balance reported for account.
func (p *MockProvider) SetBalance(account common.Address, balance *big.Int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.balances[account] = new(big.Int).Set(balance)
}

// SetAccounts replaces the exposed accounts and notifies subscribers. An empty list
// revokes access, as a wallet does when it disconnects.
func (p *MockProvider) SetAccounts(accounts ...common.Address) {
	p.mutex.Lock()
	p.accounts = accounts
	p.authorized = len(accounts) > 0
	p.mutex.Unlock()

	p.accountsFeed.Send(append([]common.Address{}, accounts...))
}

// SetChainID switches the provider to another network and notifies subscribers.
func (p *MockProvider) SetChainID(chainID *big.Int) {
	p.mutex.Lock()
	p.chainID = new(big.Int).Set(chainID)
	p.mutex.Unlock()

	p.chainFeed.Send(new(big.Int).Set(chainID))
}

func (p *MockProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.count("Accounts")
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.authorized {
		return nil, nil
	}
	return append([]common.Address{}, p.accounts...), nil
}

func (p *MockProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.count("RequestAccounts")
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	if len(p.accounts) == 0 {
		return nil, interfaces.ErrProviderAbsent
	}
	p.authorized = true
	return append([]common.Address{}, p.accounts...), nil
}

// Signer returns transaction options for account. The signer function passes
// transactions through unsigned.
func (p *MockProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	p.count("Signer")
	return &bind.TransactOpts{
		From:    account,
		Context: ctx,
		Signer: func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
	}, nil
}

func (p *MockProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	p.count("BalanceAt")
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if balance, found := p.balances[account]; found {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (p *MockProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.count("ChainID")
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return new(big.Int).Set(p.chainID), nil
}

func (p *MockProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

func (p *MockProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// ChainBackend is the JSON-RPC surface the client needs from a node.
// Both *ethclient.Client and simulated.Client satisfy it.
type ChainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	ethereum.ChainIDReader

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// WalletProvider is the injected wallet capability: account access, signing,
// network detection and change notifications.
type WalletProvider interface {
	// Accounts returns the accounts the wallet already exposes to the client without
	// prompting. It is empty until access has been granted.
	Accounts(ctx context.Context) ([]common.Address, error)

	// RequestAccounts asks the wallet for account access. The first entry is the
	// selected account. Returns ErrUserRejected if access is declined.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Signer returns transaction options authorizing calls as account.
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)

	// BalanceAt returns the latest balance of account in wei.
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)

	// ChainID returns the id of the network the wallet is currently attached to.
	ChainID(ctx context.Context) (*big.Int, error)

	// SubscribeAccountsChanged delivers the new account list whenever the wallet's
	// exposed accounts change. An empty list means the wallet disconnected.
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription

	// SubscribeChainChanged delivers the new chain id whenever the wallet switches networks.
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription
}

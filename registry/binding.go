package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// Binding couples the deployed contract address, its interface definition and a signer
// for one account on one network. It is never mutated, a changed account or network
// produces a new Binding.
type Binding struct {
	address  common.Address
	account  common.Address
	chainID  *big.Int
	registry interfaces.CredentialRegistry
}

func (b *Binding) Address() common.Address {
	return b.address
}

// Account returns the account the binding signs for.
func (b *Binding) Account() common.Address {
	return b.account
}

func (b *Binding) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// Registry returns the read/write contract handle.
func (b *Binding) Registry() interfaces.CredentialRegistry {
	return b.registry
}

// BoundTo reports whether the binding signs for account on chainID.
func (b *Binding) BoundTo(account common.Address, chainID *big.Int) bool {
	return b != nil && b.account == account && chainID != nil && b.chainID.Cmp(chainID) == 0
}

// Builder constructs Bindings for the deployment, using the wallet provider for network
// detection and signing.
type Builder struct {
	provider   interfaces.WalletProvider
	deployment interfaces.Deployment
	factory    interfaces.RegistryFactory
	log        *slog.Logger
}

// NewBuilder creates a binding builder for the deployment.
func NewBuilder(provider interfaces.WalletProvider, deployment interfaces.Deployment, factory interfaces.RegistryFactory, log *slog.Logger) *Builder {
	return &Builder{
		provider:   provider,
		deployment: deployment,
		factory:    factory,
		log:        log,
	}
}

// Deployment returns the contract deployment the builder binds to.
func (bl *Builder) Deployment() interfaces.Deployment {
	return bl.deployment
}

// detectNetwork returns the provider's chain id or a WrongNetworkError.
func (bl *Builder) detectNetwork(ctx context.Context) (*big.Int, error) {
	chainID, err := bl.provider.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not detect network: %w", ClassifyError(err))
	}

	if chainID.Cmp(bl.deployment.ChainID) != 0 {
		return chainID, &interfaces.WrongNetworkError{
			Got:  new(big.Int).Set(chainID),
			Want: new(big.Int).Set(bl.deployment.ChainID),
		}
	}

	return chainID, nil
}

// Build creates a binding for account. The network check runs before anything else,
// a provider on another chain yields a WrongNetworkError and no binding.
func (bl *Builder) Build(ctx context.Context, account common.Address) (*Binding, error) {
	chainID, err := bl.detectNetwork(ctx)
	if err != nil {
		return nil, err
	}
	return bl.build(ctx, account, chainID)
}

func (bl *Builder) build(ctx context.Context, account common.Address, chainID *big.Int) (*Binding, error) {
	auth, err := bl.provider.Signer(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("could not obtain signer for %s: %w", account, ClassifyError(err))
	}

	reg, err := bl.factory.RegistryFor(bl.deployment.Address, auth)
	if err != nil {
		return nil, fmt.Errorf("could not bind registry at %s: %w", bl.deployment.Address, err)
	}

	bl.log.Debug("Built contract binding",
		slog.String("contract", bl.deployment.Address.Hex()),
		slog.String("account", account.Hex()),
		slog.String("chainID", chainID.String()))

	return &Binding{
		address:  bl.deployment.Address,
		account:  account,
		chainID:  new(big.Int).Set(chainID),
		registry: reg,
	}, nil
}

// RebuildIfStale returns current when it is already bound to account on the deployment
// network, otherwise a freshly built binding. The boolean reports whether a new binding
// was constructed.
func (bl *Builder) RebuildIfStale(ctx context.Context, current *Binding, account common.Address) (*Binding, bool, error) {
	chainID, err := bl.detectNetwork(ctx)
	if err != nil {
		return nil, false, err
	}

	if current.BoundTo(account, chainID) {
		return current, false, nil
	}

	b, err := bl.build(ctx, account, chainID)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

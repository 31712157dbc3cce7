package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// ErrPromptDeclined is returned by a PassphrasePrompt when the user declines to unlock.
var ErrPromptDeclined = errors.New("passphrase prompt declined")

// PassphrasePrompt asks the user for the passphrase of account.
type PassphrasePrompt func(account common.Address) (string, error)

// KeystoreProvider is a wallet provider backed by a go-ethereum keystore directory and a
// JSON-RPC node. Requesting accounts unlocks the selected account through the prompt.
type KeystoreProvider struct {
	ks      *keystore.KeyStore
	backend interfaces.ChainBackend
	prompt  PassphrasePrompt
	log     *slog.Logger

	mutex     sync.Mutex
	selected  common.Address
	connected bool
	chainID   *big.Int

	accountsFeed event.Feed
	chainFeed    event.Feed
}

// NewKeystoreProvider creates a provider over ks. The first keystore account is selected
// unless Select is called.
func NewKeystoreProvider(ks *keystore.KeyStore, backend interfaces.ChainBackend, prompt PassphrasePrompt, log *slog.Logger) *KeystoreProvider {
	return &KeystoreProvider{
		ks:      ks,
		backend: backend,
		prompt:  prompt,
		log:     log,
	}
}

// Select makes account the exposed account. Subscribers are notified when the wallet is
// connected and the selection changes.
func (p *KeystoreProvider) Select(account common.Address) error {
	if !p.ks.HasAddress(account) {
		return fmt.Errorf("account %s is not in the keystore", account.Hex())
	}

	p.mutex.Lock()
	changed := p.selected != account
	p.selected = account
	connected := p.connected
	p.mutex.Unlock()

	if changed && connected {
		p.accountsFeed.Send([]common.Address{account})
	}
	return nil
}

// Disconnect locks the selected account and notifies subscribers with an empty account list.
func (p *KeystoreProvider) Disconnect() {
	p.mutex.Lock()
	account, err := p.selectedLocked()
	wasConnected := p.connected
	p.connected = false
	p.mutex.Unlock()

	if err == nil {
		if lockErr := p.ks.Lock(account); lockErr != nil {
			p.log.Warn("Could not lock account", "account", account.Hex(), "err", lockErr)
		}
	}
	if wasConnected {
		p.accountsFeed.Send([]common.Address{})
	}
}

// selectedLocked returns the selected account, defaulting to the first keystore account.
func (p *KeystoreProvider) selectedLocked() (common.Address, error) {
	if p.selected != (common.Address{}) {
		return p.selected, nil
	}
	wallets := p.ks.Accounts()
	if len(wallets) == 0 {
		return common.Address{}, interfaces.ErrProviderAbsent
	}
	return wallets[0].Address, nil
}

func (p *KeystoreProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.connected {
		return nil, nil
	}
	account, err := p.selectedLocked()
	if err != nil {
		return nil, nil
	}
	return []common.Address{account}, nil
}

// RequestAccounts unlocks the selected account. An empty keystore yields ErrProviderAbsent,
// a declined prompt or a wrong passphrase yields ErrUserRejected.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mutex.Lock()
	account, err := p.selectedLocked()
	p.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	passphrase, err := p.prompt(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
	}

	if err := p.ks.Unlock(accounts.Account{Address: account}, passphrase); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrUserRejected, err)
		}
		return nil, err
	}

	p.mutex.Lock()
	p.selected = account
	p.connected = true
	p.mutex.Unlock()

	p.log.Info("Keystore account unlocked", "account", account.Hex())
	return []common.Address{account}, nil
}

// Signer returns keystore-backed transaction options for account on the node's chain.
func (p *KeystoreProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if !p.ks.HasAddress(account) {
		return nil, fmt.Errorf("account %s is not in the keystore", account.Hex())
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	auth, err := bind.NewKeyStoreTransactorWithChainID(p.ks, accounts.Account{Address: account}, chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

func (p *KeystoreProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return p.backend.BalanceAt(ctx, account, nil)
}

func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	p.mutex.Lock()
	if p.chainID == nil {
		p.chainID = new(big.Int).Set(chainID)
	}
	p.mutex.Unlock()
	return chainID, nil
}

func (p *KeystoreProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return p.accountsFeed.Subscribe(ch)
}

func (p *KeystoreProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return p.chainFeed.Subscribe(ch)
}

// Run watches the node's chain id every interval and the keystore for removed accounts,
// emitting the corresponding notifications until ctx is done.
func (p *KeystoreProvider) Run(ctx context.Context, interval time.Duration) {
	walletEvents := make(chan accounts.WalletEvent, 8)
	sub := p.ks.Subscribe(walletEvents)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				p.log.Error("Keystore subscription failed", "err", err)
			}
			return
		case ev := <-walletEvents:
			p.handleWalletEvent(ev)
		case <-ticker.C:
			p.pollChainID(ctx)
		}
	}
}

func (p *KeystoreProvider) handleWalletEvent(ev accounts.WalletEvent) {
	if ev.Kind != accounts.WalletDropped {
		return
	}

	p.mutex.Lock()
	dropped := false
	for _, acc := range ev.Wallet.Accounts() {
		if p.connected && acc.Address == p.selected {
			dropped = true
		}
	}
	if dropped {
		p.connected = false
		p.selected = common.Address{}
	}
	p.mutex.Unlock()

	if dropped {
		p.log.Warn("Selected account was removed from the keystore")
		p.accountsFeed.Send([]common.Address{})
	}
}

func (p *KeystoreProvider) pollChainID(ctx context.Context) {
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		p.log.Debug("Could not poll chain id", "err", err)
		return
	}

	p.mutex.Lock()
	changed := p.chainID != nil && p.chainID.Cmp(chainID) != 0
	p.chainID = new(big.Int).Set(chainID)
	p.mutex.Unlock()

	if changed {
		p.log.Info("Node network changed", "chainID", chainID.String())
		p.chainFeed.Send(new(big.Int).Set(chainID))
	}
}

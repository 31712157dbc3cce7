// Package wallet keeps the client's session consistent with an asynchronously changing
// wallet provider: the active account, the detected network and the contract binding.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/metrics"
	"github.com/ruteri/credential-registry-client/registry"
)

// notificationBuffer bounds the number of provider notifications queued between handler runs.
const notificationBuffer = 16

// SessionManager is the sole writer of the session state. Handlers run to completion one
// at a time, notifications from the provider are queued and handled in arrival order.
type SessionManager struct {
	provider interfaces.WalletProvider
	builder  *registry.Builder
	log      *slog.Logger

	// handlerMu serializes handlers, stateMu guards the snapshot.
	handlerMu sync.Mutex
	stateMu   sync.RWMutex
	state     State

	accountsCh chan []common.Address
	chainCh    chan *big.Int
	subsMu     sync.Mutex
	subs       []event.Subscription

	stateFeed  event.Feed
	stateScope event.SubscriptionScope

	barrier   chan chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
	started   bool
}

// NewSessionManager creates a session manager. A nil provider is allowed, every connect
// attempt then fails with ErrProviderAbsent.
func NewSessionManager(provider interfaces.WalletProvider, deployment interfaces.Deployment, factory interfaces.RegistryFactory, log *slog.Logger) *SessionManager {
	m := &SessionManager{
		provider:   provider,
		log:        log,
		accountsCh: make(chan []common.Address, notificationBuffer),
		chainCh:    make(chan *big.Int, notificationBuffer),
		barrier:    make(chan chan struct{}),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		state:      State{Status: StatusDisconnected},
	}
	if provider != nil {
		m.builder = registry.NewBuilder(provider, deployment, factory, log)
	}
	return m
}

// Start registers the provider listeners, restores an already authorized account without
// prompting and starts handling notifications in the background until Close.
func (m *SessionManager) Start(ctx context.Context) error {
	if m.provider == nil {
		m.apply(connectFailed{message: MessageNoProvider})
		return interfaces.ErrProviderAbsent
	}

	m.handlerMu.Lock()
	if m.started {
		m.handlerMu.Unlock()
		return errors.New("session manager already started")
	}
	m.started = true
	m.subscribe()
	err := m.restore(ctx)
	m.handlerMu.Unlock()

	go m.loop(ctx)
	return err
}

// Close releases the provider subscriptions and the state subscribers.
func (m *SessionManager) Close() {
	m.handlerMu.Lock()
	started := m.started
	m.handlerMu.Unlock()

	m.closeOnce.Do(func() {
		if started {
			close(m.quit)
			<-m.loopDone
		}
		m.unsubscribe()
		m.stateScope.Close()
	})
}

func (m *SessionManager) subscribe() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs,
		m.provider.SubscribeAccountsChanged(m.accountsCh),
		m.provider.SubscribeChainChanged(m.chainCh),
	)
}

func (m *SessionManager) unsubscribe() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.subs = nil
}

func (m *SessionManager) loop(ctx context.Context) {
	defer close(m.loopDone)
	for {
		select {
		case accounts := <-m.accountsCh:
			m.handlerMu.Lock()
			m.onAccountsChanged(ctx, accounts)
			m.handlerMu.Unlock()
		case chainID := <-m.chainCh:
			m.handlerMu.Lock()
			m.onChainChanged(ctx, chainID)
			m.handlerMu.Unlock()
		case done := <-m.barrier:
			m.handlerMu.Lock()
			m.drain(ctx)
			m.handlerMu.Unlock()
			close(done)
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain handles every queued notification. Caller must hold handlerMu.
func (m *SessionManager) drain(ctx context.Context) {
	for {
		select {
		case accounts := <-m.accountsCh:
			m.onAccountsChanged(ctx, accounts)
		case chainID := <-m.chainCh:
			m.onChainChanged(ctx, chainID)
		default:
			return
		}
	}
}

// sync returns once every notification queued before the call has been handled.
func (m *SessionManager) sync(ctx context.Context) error {
	m.handlerMu.Lock()
	started := m.started
	if !started {
		m.drain(ctx)
	}
	m.handlerMu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	select {
	case m.barrier <- done:
	case <-m.loopDone:
		m.handlerMu.Lock()
		m.drain(ctx)
		m.handlerMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current session snapshot.
func (m *SessionManager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// SubscribeState delivers every new session snapshot to ch. Sends block until ch accepts
// the value, subscribers should use a buffered channel.
func (m *SessionManager) SubscribeState(ch chan<- State) event.Subscription {
	return m.stateScope.Track(m.stateFeed.Subscribe(ch))
}

func (m *SessionManager) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
	m.stateFeed.Send(s)
}

func (m *SessionManager) apply(a action) State {
	s := reduce(m.State(), a)
	m.setState(s)
	return s
}

// Binding returns the live contract binding. Account and network notifications queued
// before the call are handled first, so the returned binding is never stale with respect
// to them.
func (m *SessionManager) Binding(ctx context.Context) (*registry.Binding, error) {
	if err := m.sync(ctx); err != nil {
		return nil, err
	}

	s := m.State()
	switch {
	case s.Status == StatusWrongNetwork && s.NetworkErr != nil:
		return nil, s.NetworkErr
	case s.Account == nil || s.Binding == nil:
		return nil, interfaces.ErrNotConnected
	}
	return s.Binding, nil
}

// Connect requests account access from the provider and binds the first exposed account.
func (m *SessionManager) Connect(ctx context.Context) error {
	if m.provider == nil {
		m.apply(connectFailed{message: MessageNoProvider})
		return interfaces.ErrProviderAbsent
	}

	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()

	m.drain(ctx)
	m.apply(connectStarted{})

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		err = registry.ClassifyError(err)
		m.log.Warn("Account access request failed", "err", err)
		m.apply(connectFailed{message: connectMessage(err)})
		return err
	}
	if len(accounts) == 0 {
		m.apply(connectFailed{message: MessageRejected})
		return interfaces.ErrUserRejected
	}

	return m.adopt(ctx, accounts[0])
}

// OnAccountsChanged handles an account change notification. An empty list tears the
// session down, a new first account replaces the active account and its binding.
func (m *SessionManager) OnAccountsChanged(ctx context.Context, accounts []common.Address) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onAccountsChanged(ctx, accounts)
}

func (m *SessionManager) onAccountsChanged(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		m.log.Info("Wallet disconnected")
		metrics.RecordSessionEvent("disconnected")
		m.apply(disconnected{message: MessageDisconnected})
		return
	}

	if current := m.State(); current.Account == nil || *current.Account != accounts[0] {
		m.log.Info("Active account changed", "account", accounts[0].Hex())
		metrics.RecordSessionEvent("account_changed")
	}
	_ = m.adopt(ctx, accounts[0])
}

// OnChainChanged handles a network change notification with a full reload: the session is
// reset, the listeners are registered again and an authorized account is restored.
func (m *SessionManager) OnChainChanged(ctx context.Context, chainID *big.Int) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onChainChanged(ctx, chainID)
}

func (m *SessionManager) onChainChanged(ctx context.Context, chainID *big.Int) {
	m.log.Info("Network changed, reloading session", "chainID", chainID.String())
	metrics.RecordSessionEvent("chain_changed")

	m.apply(reloaded{})
	m.unsubscribe()
	m.subscribe()

	if err := m.restore(ctx); err != nil {
		m.log.Warn("Could not restore session after network change", "err", err)
	}
}

// restore binds an account the wallet already exposes, without prompting.
func (m *SessionManager) restore(ctx context.Context) error {
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		err = registry.ClassifyError(err)
		m.apply(connectFailed{message: connectMessage(err)})
		return err
	}
	if len(accounts) == 0 {
		return nil
	}
	return m.adopt(ctx, accounts[0])
}

// adopt makes account the active account, reusing the current binding when it is already
// bound to it. Owner and balance are refetched only for a new binding.
func (m *SessionManager) adopt(ctx context.Context, account common.Address) error {
	current := m.State()

	binding, rebuilt, err := m.builder.RebuildIfStale(ctx, current.Binding, account)
	if err != nil {
		var netErr *interfaces.WrongNetworkError
		if errors.As(err, &netErr) {
			m.log.Warn("Wallet is on the wrong network",
				"account", account.Hex(),
				"chainID", netErr.Got.String(),
				"expected", netErr.Want.String())
			m.apply(wrongNetwork{account: account, err: netErr})
			return err
		}

		m.log.Error("Could not bind registry", "account", account.Hex(), "err", err)
		if current.Account != nil && *current.Account != account {
			// The previous account's binding must not outlive the switch.
			m.apply(switchFailed{account: account, message: connectMessage(err)})
		} else {
			m.apply(connectFailed{message: connectMessage(err)})
		}
		return err
	}

	m.apply(bound{binding: binding, rebuilt: rebuilt})
	if !rebuilt {
		return nil
	}
	metrics.RecordSessionEvent("bound")

	owner, balance := m.fetchDetails(ctx, binding)
	m.apply(detailsLoaded{owner: owner, balance: balance})
	return nil
}

// fetchDetails reads the contract owner and the account balance. Failures are logged
// and leave the corresponding field unset.
func (m *SessionManager) fetchDetails(ctx context.Context, binding *registry.Binding) (*common.Address, *big.Int) {
	var ownerPtr *common.Address
	owner, err := binding.Registry().Owner(ctx)
	if err != nil {
		m.log.Warn("Could not fetch contract owner", "err", registry.ClassifyError(err))
	} else {
		ownerPtr = &owner
	}

	balance, err := m.provider.BalanceAt(ctx, binding.Account())
	if err != nil {
		m.log.Warn("Could not fetch account balance", "account", binding.Account().Hex(), "err", registry.ClassifyError(err))
		balance = nil
	}

	return ownerPtr, balance
}

func connectMessage(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrProviderAbsent):
		return MessageNoProvider
	case errors.Is(err, interfaces.ErrUserRejected):
		return MessageRejected
	case errors.Is(err, interfaces.ErrWrongNetwork):
		return err.Error()
	case errors.Is(err, interfaces.ErrNetwork):
		return "Could not reach the network. Please try again."
	default:
		return fmt.Sprintf("Could not connect wallet: %v", err)
	}
}

package wallet

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/interfaces"
)

const testPassphrase = "correct horse battery staple"

func setupKeystore(t *testing.T) (*keystore.KeyStore, *simulated.Backend, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.ImportECDSA(key, testPassphrase)
	require.NoError(t, err)

	balance, ok := new(big.Int).SetString("10000000000000000000", 10) // 10 ETH
	require.True(t, ok)

	backend := simulated.NewBackend(map[common.Address]types.Account{
		account.Address: {Balance: balance},
	})
	t.Cleanup(func() { backend.Close() })

	return ks, backend, account.Address
}

func fixedPrompt(passphrase string) PassphrasePrompt {
	return func(common.Address) (string, error) {
		return passphrase, nil
	}
}

func TestKeystoreProvider_RequestAccounts(t *testing.T) {
	ks, backend, address := setupKeystore(t)
	ctx := context.Background()

	provider := NewKeystoreProvider(ks, backend.Client(), fixedPrompt(testPassphrase), slog.Default())

	exposed, err := provider.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, exposed, "nothing is exposed before access is granted")

	granted, err := provider.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{address}, granted)

	exposed, err = provider.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{address}, exposed)

	chainID, err := provider.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), chainID.Int64())

	balance, err := provider.BalanceAt(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", balance.String())
}

func TestKeystoreProvider_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty keystore", func(t *testing.T) {
		ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
		provider := NewKeystoreProvider(ks, nil, fixedPrompt(testPassphrase), slog.Default())

		_, err := provider.RequestAccounts(ctx)
		assert.ErrorIs(t, err, interfaces.ErrProviderAbsent)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		ks, backend, _ := setupKeystore(t)
		provider := NewKeystoreProvider(ks, backend.Client(), fixedPrompt("wrong"), slog.Default())

		_, err := provider.RequestAccounts(ctx)
		assert.ErrorIs(t, err, interfaces.ErrUserRejected)
	})

	t.Run("prompt declined", func(t *testing.T) {
		ks, backend, _ := setupKeystore(t)
		declined := func(common.Address) (string, error) { return "", ErrPromptDeclined }
		provider := NewKeystoreProvider(ks, backend.Client(), declined, slog.Default())

		_, err := provider.RequestAccounts(ctx)
		assert.ErrorIs(t, err, interfaces.ErrUserRejected)
	})
}

func TestKeystoreProvider_SignerSendsTransactions(t *testing.T) {
	ks, backend, address := setupKeystore(t)
	ctx := context.Background()
	client := backend.Client()

	provider := NewKeystoreProvider(ks, client, fixedPrompt(testPassphrase), slog.Default())
	_, err := provider.RequestAccounts(ctx)
	require.NoError(t, err)

	auth, err := provider.Signer(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, address, auth.From)

	gasPrice, err := client.SuggestGasPrice(ctx)
	require.NoError(t, err)

	recipient := common.HexToAddress("0x3000000000000000000000000000000000000003")
	tx, err := auth.Signer(address, types.NewTx(&types.LegacyTx{
		To:       &recipient,
		Value:    big.NewInt(1000),
		Gas:      21000,
		GasPrice: gasPrice,
	}))
	require.NoError(t, err)
	require.NoError(t, client.SendTransaction(ctx, tx))
	backend.Commit()

	received, err := client.BalanceAt(ctx, recipient, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), received.Int64())

	// A locked account cannot sign
	provider.Disconnect()
	_, err = auth.Signer(address, tx)
	assert.ErrorIs(t, err, keystore.ErrLocked)
}

func TestKeystoreProvider_Notifications(t *testing.T) {
	ks, backend, address := setupKeystore(t)
	ctx := context.Background()

	provider := NewKeystoreProvider(ks, backend.Client(), fixedPrompt(testPassphrase), slog.Default())
	accountsCh := make(chan []common.Address, 4)
	sub := provider.SubscribeAccountsChanged(accountsCh)
	defer sub.Unsubscribe()

	_, err := provider.RequestAccounts(ctx)
	require.NoError(t, err)

	second, err := ks.NewAccount(testPassphrase)
	require.NoError(t, err)
	require.NoError(t, provider.Select(second.Address))

	select {
	case accounts := <-accountsCh:
		assert.Equal(t, []common.Address{second.Address}, accounts)
	case <-time.After(time.Second):
		t.Fatal("account change not delivered")
	}

	require.NoError(t, provider.Select(address))
	<-accountsCh

	provider.Disconnect()
	select {
	case accounts := <-accountsCh:
		assert.Empty(t, accounts)
	case <-time.After(time.Second):
		t.Fatal("disconnect not delivered")
	}

	assert.Error(t, provider.Select(common.HexToAddress("0x04")))
}

func TestKeystoreProvider_DroppedAccount(t *testing.T) {
	ks, backend, _ := setupKeystore(t)
	provider := NewKeystoreProvider(ks, backend.Client(), fixedPrompt(testPassphrase), slog.Default())
	_, err := provider.RequestAccounts(context.Background())
	require.NoError(t, err)

	accountsCh := make(chan []common.Address, 1)
	sub := provider.SubscribeAccountsChanged(accountsCh)
	defer sub.Unsubscribe()

	wallets := ks.Wallets()
	require.Len(t, wallets, 1)
	provider.handleWalletEvent(accounts.WalletEvent{Wallet: wallets[0], Kind: accounts.WalletDropped})

	assert.Empty(t, <-accountsCh)
	exposed, err := provider.Accounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, exposed)
}

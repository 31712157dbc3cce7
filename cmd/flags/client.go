package flags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/ruteri/credential-registry-client/dapp"
	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/registry"
	"github.com/ruteri/credential-registry-client/storage"
	"github.com/ruteri/credential-registry-client/wallet"
)

// chainPollInterval is how often the keystore provider checks the node's chain id.
const chainPollInterval = 5 * time.Second

// Client is a wired credential registry client.
type Client struct {
	App     *dapp.App
	Session *wallet.SessionManager

	closers []func()
}

// Close stops the background watchers and releases the node connection.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// SetupClient builds the wallet provider, the session and the app from the client flags.
// The session is started, an account the wallet already exposes is bound without prompting.
func SetupClient(cCtx *cli.Context, log *slog.Logger) (*Client, error) {
	deployment, err := interfaces.NewDeployment(cCtx.String(ContractFlag.Name), cCtx.String(ChainIDFlag.Name))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cCtx.Context)
	client := &Client{closers: []func(){cancel}}

	var provider interfaces.WalletProvider
	var factory interfaces.RegistryFactory
	if cCtx.Bool(DryRunFlag.Name) {
		provider, factory, err = dryRunProvider(cCtx, deployment, log)
	} else {
		provider, factory, err = keystoreProvider(ctx, cCtx, client, log)
	}
	if err != nil {
		client.Close()
		return nil, err
	}

	pinner, err := setupPinner(ctx, cCtx, log)
	if err != nil {
		client.Close()
		return nil, err
	}

	session := wallet.NewSessionManager(provider, deployment, factory, log)
	client.closers = append(client.closers, session.Close)
	if err := session.Start(ctx); err != nil && !errors.Is(err, interfaces.ErrProviderAbsent) {
		log.Warn("Could not restore wallet session", "err", err)
	}

	client.Session = session
	client.App = dapp.New(session, deployment, pinner, dapp.Config{
		PollInterval:   cCtx.Duration(PollIntervalFlag.Name),
		ConfirmTimeout: cCtx.Duration(ConfirmTimeoutFlag.Name),
	}, log)
	return client, nil
}

func dryRunProvider(cCtx *cli.Context, deployment interfaces.Deployment, log *slog.Logger) (interfaces.WalletProvider, interfaces.RegistryFactory, error) {
	accountHex := cCtx.String(DryRunAccountFlag.Name)
	if !ethcommon.IsHexAddress(accountHex) {
		return nil, nil, fmt.Errorf("invalid dry run account %q", accountHex)
	}
	account := ethcommon.HexToAddress(accountHex)

	log.Info("Dry run against an in-memory registry", "account", account.Hex(), "contract", deployment.Address.Hex())
	provider := wallet.NewMockProvider(deployment.ChainID, account)
	return provider, registry.NewMockClientFactory(deployment.Address, account), nil
}

func keystoreProvider(ctx context.Context, cCtx *cli.Context, client *Client, log *slog.Logger) (interfaces.WalletProvider, interfaces.RegistryFactory, error) {
	dir := cCtx.String(KeystoreFlag.Name)
	if dir == "" {
		log.Warn("No keystore configured, wallet features are unavailable")
		return nil, nil, nil
	}

	rpcAddress := cCtx.String(RpcAddrFlag.Name)
	log.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.DialContext(ctx, rpcAddress)
	if err != nil {
		log.Error("Failed to dial RPC", "err", err)
		return nil, nil, err
	}
	client.closers = append(client.closers, ethClient.Close)

	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	provider := wallet.NewKeystoreProvider(ks, ethClient, passphrasePrompt(cCtx.String(PassphraseFlag.Name)), log)

	if accountHex := cCtx.String(AccountFlag.Name); accountHex != "" {
		if !ethcommon.IsHexAddress(accountHex) {
			return nil, nil, fmt.Errorf("invalid account %q", accountHex)
		}
		if err := provider.Select(ethcommon.HexToAddress(accountHex)); err != nil {
			return nil, nil, err
		}
	}

	go provider.Run(ctx, chainPollInterval)
	return provider, registry.NewRegistryFactory(ethClient), nil
}

// passphrasePrompt returns the configured passphrase, or reads it from the terminal
// without echo.
func passphrasePrompt(passphrase string) wallet.PassphrasePrompt {
	return func(account ethcommon.Address) (string, error) {
		if passphrase != "" {
			return passphrase, nil
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", wallet.ErrPromptDeclined
		}
		fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account.Hex())
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil || len(data) == 0 {
			return "", wallet.ErrPromptDeclined
		}
		return string(data), nil
	}
}

func setupPinner(ctx context.Context, cCtx *cli.Context, log *slog.Logger) (interfaces.Pinner, error) {
	uris := cCtx.StringSlice(PinnerFlag.Name)
	if len(uris) == 0 {
		return nil, nil
	}

	creds := storage.PinataCredentials{
		APIKey:    cCtx.String(PinataKeyFlag.Name),
		APISecret: cCtx.String(PinataSecretFlag.Name),
		JWT:       cCtx.String(PinataJWTFlag.Name),
	}

	if vaultAddr := cCtx.String(VaultAddrFlag.Name); vaultAddr != "" {
		vaultClient, err := storage.NewVaultClient(vaultAddr, cCtx.String(VaultTokenFlag.Name))
		if err != nil {
			return nil, err
		}
		creds, err = storage.PinataCredentialsFromVault(ctx, vaultClient, cCtx.String(VaultMountFlag.Name), cCtx.String(VaultPathFlag.Name), log)
		if err != nil {
			return nil, err
		}
	}

	return storage.NewPinnerFactory(log, creds).CreateMultiPinner(uris)
}

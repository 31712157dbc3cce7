package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/credential-registry-client/common"
	"github.com/ruteri/credential-registry-client/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	confirmTimeout := cCtx.Duration(ConfirmTimeoutFlag.Name)

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		AllowedOrigins:           cCtx.StringSlice(CorsOriginsFlag.Name),
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             confirmTimeout + 30*time.Second,
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC",
	EnvVars: []string{"RPC_ADDR"},
}

var ContractFlag = &cli.StringFlag{
	Name:  "contract",
	Value: common.ContractAddress,
	Usage: "address of the deployed credential registry contract",
}

var ChainIDFlag = &cli.StringFlag{
	Name:  "chain-id",
	Value: common.ChainID,
	Usage: "decimal id of the network the contract is deployed on",
}

var KeystoreFlag = &cli.StringFlag{
	Name:    "keystore",
	Usage:   "keystore directory holding the wallet accounts",
	EnvVars: []string{"KEYSTORE_DIR"},
}

var AccountFlag = &cli.StringFlag{
	Name:  "account",
	Usage: "keystore account to use, defaults to the first account",
}

var PassphraseFlag = &cli.StringFlag{
	Name:    "passphrase",
	Usage:   "keystore passphrase, prompted on the terminal when empty",
	EnvVars: []string{"KEYSTORE_PASSPHRASE"},
}

var DryRunFlag = &cli.BoolFlag{
	Name:  "dry-run",
	Value: false,
	Usage: "run against an in-memory registry instead of a node",
}

var DryRunAccountFlag = &cli.StringFlag{
	Name:  "dry-run-account",
	Value: "0x1000000000000000000000000000000000000001",
	Usage: "wallet account of the dry run, it also owns the in-memory registry",
}

var PinnerFlag = &cli.StringSliceFlag{
	Name:  "pinner",
	Usage: "pinning backend URI, pinata://[key:secret@]host or ipfs://host:port (repeatable)",
}

var PinataJWTFlag = &cli.StringFlag{
	Name:    "pinata-jwt",
	Usage:   "Pinata JWT used by pinata:// backends without inline credentials",
	EnvVars: []string{"PINATA_JWT"},
}

var PinataKeyFlag = &cli.StringFlag{
	Name:    "pinata-api-key",
	Usage:   "Pinata API key used by pinata:// backends without inline credentials",
	EnvVars: []string{"PINATA_API_KEY"},
}

var PinataSecretFlag = &cli.StringFlag{
	Name:    "pinata-api-secret",
	Usage:   "Pinata API secret",
	EnvVars: []string{"PINATA_API_SECRET"},
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Usage:   "Vault address to read Pinata credentials from",
	EnvVars: []string{"VAULT_ADDR"},
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault token",
	EnvVars: []string{"VAULT_TOKEN"},
}

var VaultMountFlag = &cli.StringFlag{
	Name:  "vault-mount",
	Value: "secret",
	Usage: "Vault KV v2 mount holding the Pinata credentials",
}

var VaultPathFlag = &cli.StringFlag{
	Name:  "vault-path",
	Value: "pinata",
	Usage: "Vault KV v2 secret path holding the Pinata credentials",
}

var PollIntervalFlag = &cli.DurationFlag{
	Name:  "poll-interval",
	Value: 2 * time.Second,
	Usage: "transaction receipt polling interval",
}

var ConfirmTimeoutFlag = &cli.DurationFlag{
	Name:  "confirm-timeout",
	Value: 5 * time.Minute,
	Usage: "time to wait for a transaction to be mined",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var CorsOriginsFlag = &cli.StringSliceFlag{
	Name:  "cors-origin",
	Usage: "browser origin allowed to call the API (repeatable)",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	CorsOriginsFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

// ClientFlags configure the wallet, the registry deployment and the pinning backends.
var ClientFlags = []cli.Flag{
	RpcAddrFlag,
	ContractFlag,
	ChainIDFlag,
	KeystoreFlag,
	AccountFlag,
	PassphraseFlag,
	DryRunFlag,
	DryRunAccountFlag,
	PinnerFlag,
	PinataJWTFlag,
	PinataKeyFlag,
	PinataSecretFlag,
	VaultAddrFlag,
	VaultTokenFlag,
	VaultMountFlag,
	VaultPathFlag,
	PollIntervalFlag,
	ConfirmTimeoutFlag,
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// Keys of the Vault secret holding the Pinata credentials.
const (
	vaultKeyAPIKey    = "api_key"
	vaultKeyAPISecret = "api_secret"
	vaultKeyJWT       = "jwt"
)

// NewVaultClient creates a Vault API client authenticated with token.
func NewVaultClient(address, token string) (*api.Client, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// PinataCredentialsFromVault reads the Pinata credentials stored in a KV v2 secret at
// mountPath/dataPath. The secret holds either api_key and api_secret, or jwt.
func PinataCredentialsFromVault(ctx context.Context, client *api.Client, mountPath, dataPath string, log *slog.Logger) (PinataCredentials, error) {
	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	// Vault KV v2 path structure
	path := fmt.Sprintf("%s/data/%s", mountPath, dataPath)

	secret, err := client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return PinataCredentials{}, fmt.Errorf("could not read pinata credentials: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return PinataCredentials{}, fmt.Errorf("no pinata credentials at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return PinataCredentials{}, fmt.Errorf("invalid data format in Vault response at %s", path)
	}

	creds := PinataCredentials{
		APIKey:    stringField(data, vaultKeyAPIKey),
		APISecret: stringField(data, vaultKeyAPISecret),
		JWT:       stringField(data, vaultKeyJWT),
	}
	if creds.empty() {
		return PinataCredentials{}, fmt.Errorf("secret at %s holds neither %s/%s nor %s", path, vaultKeyAPIKey, vaultKeyAPISecret, vaultKeyJWT)
	}

	log.Debug("Loaded pinata credentials from Vault", slog.String("path", path), slog.Bool("jwt", creds.JWT != ""))
	return creds, nil
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

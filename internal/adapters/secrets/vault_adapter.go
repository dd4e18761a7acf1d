package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// VaultConfig contains configuration for the HashiCorp Vault adapter
type VaultConfig struct {
	Address string

	// Authentication method: "token", "approle", "kubernetes"
	AuthMethod string

	Token string

	RoleID   string
	SecretID string

	K8sTokenPath string
	K8sRole      string

	// Vault Enterprise namespace
	Namespace string

	// KV mount path (default: "secret") and engine version "v1" or "v2"
	MountPath string
	KVVersion string

	CacheTTL    time.Duration
	EnableCache bool

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for the Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		AuthMethod:  "token",
		MountPath:   "secret",
		KVVersion:   "v2",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// logicalAPI is the part of the Vault logical backend the adapter calls
type logicalAPI interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultSecretManager reads secrets from a Vault KV engine
type VaultSecretManager struct {
	logical logicalAPI
	config  *VaultConfig
	logger  *zap.Logger
	cache   *secretCache
}

// NewVaultSecretManager creates and authenticates a Vault client
func NewVaultSecretManager(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (*VaultSecretManager, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return newVaultSecretManager(client.Logical(), cfg, logger), nil
}

func newVaultSecretManager(logical logicalAPI, cfg *VaultConfig, logger *zap.Logger) *VaultSecretManager {
	return &VaultSecretManager{
		logical: logical,
		config:  cfg,
		logger:  logger,
		cache:   newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		return login(ctx, client, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})

	case "kubernetes":
		if cfg.K8sTokenPath == "" || cfg.K8sRole == "" {
			return fmt.Errorf("k8s_token_path and k8s_role are required for Kubernetes auth")
		}
		jwt, err := os.ReadFile(cfg.K8sTokenPath)
		if err != nil {
			return fmt.Errorf("failed to read k8s token: %w", err)
		}
		return login(ctx, client, "auth/kubernetes/login", map[string]interface{}{
			"jwt":  string(jwt),
			"role": cfg.K8sRole,
		})

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

func login(ctx context.Context, client *vault.Client, path string, data map[string]interface{}) error {
	resp, err := client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return fmt.Errorf("login to %s failed: %w", path, err)
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("login to %s returned no auth info", path)
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret retrieves a secret by its path below the KV mount.
// The value is read from the "value" key, else the first string entry.
func (v *VaultSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := v.cache.get(path); cached != nil {
		v.logger.Debug("Secret retrieved from cache", zap.String("path", path))
		return cached, nil
	}

	fullPath := fmt.Sprintf("%s/%s", v.config.MountPath, path)
	if v.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/data/%s", v.config.MountPath, path)
	}

	start := time.Now()
	raw, err := v.logical.ReadWithContext(ctx, fullPath)
	if err != nil {
		v.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	secretData := raw.Data
	secret := &ports.Secret{Version: "1", Metadata: make(map[string]string)}

	if v.config.KVVersion == "v2" {
		data, ok := raw.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		secretData = data

		if metadata, ok := raw.Data["metadata"].(map[string]interface{}); ok {
			switch ver := metadata["version"].(type) {
			case json.Number:
				secret.Version = ver.String()
			case float64:
				secret.Version = fmt.Sprintf("%.0f", ver)
			}
			if ct, ok := metadata["created_time"].(string); ok {
				secret.CreatedAt = ct
			}
		}
	}

	if val, ok := secretData["value"].(string); ok {
		secret.Value = val
	} else {
		for key, val := range secretData {
			if str, ok := val.(string); ok {
				secret.Value = str
				secret.Metadata["key"] = key
				break
			}
		}
	}
	if secret.Value == "" {
		return nil, fmt.Errorf("secret %s has no string value", path)
	}

	v.logger.Info("Secret retrieved successfully",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)),
	)

	v.cache.set(path, secret)
	return secret, nil
}

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// EnvSecretManager serves secrets from environment variables.
// The path is upper-cased with "/", "-" and "." replaced by "_".
// WARNING: development only.
type EnvSecretManager struct {
	lookup func(string) (string, bool)
	logger *zap.Logger
}

// NewEnvSecretManager creates a secret manager backed by os.LookupEnv
func NewEnvSecretManager(logger *zap.Logger) *EnvSecretManager {
	return &EnvSecretManager{lookup: os.LookupEnv, logger: logger}
}

var envKeyReplacer = strings.NewReplacer("/", "_", "-", "_", ".", "_")

// EnvKey returns the variable name consulted for a secret path
func EnvKey(path string) string {
	return strings.ToUpper(envKeyReplacer.Replace(strings.Trim(path, "/")))
}

// GetSecret reads the variable named by EnvKey(path)
func (m *EnvSecretManager) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	key := EnvKey(path)
	value, ok := m.lookup(key)
	if !ok || value == "" {
		return nil, fmt.Errorf("secret not found: %s (env %s)", path, key)
	}
	m.logger.Debug("Secret read from environment", zap.String("path", path), zap.String("env", key))
	return &ports.Secret{Value: value, Version: "env", Metadata: map[string]string{"env": key}}, nil
}

// LocalSecretManager reads secrets from files below a base directory.
// WARNING: development only.
type LocalSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretManager creates a new local filesystem secret manager
func NewLocalSecretManager(basePath string, logger *zap.Logger) *LocalSecretManager {
	return &LocalSecretManager{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/path as plain text, or as JSON {"value", "tags", "created_at"}
func (m *LocalSecretManager) GetSecret(_ context.Context, secretPath string) (*ports.Secret, error) {
	filePath := filepath.Join(m.basePath, filepath.Clean("/"+secretPath))

	m.logger.Debug("Reading secret from filesystem", zap.String("path", secretPath))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &ports.Secret{
			Value:     secretData.Value,
			Version:   "v1",
			Metadata:  secretData.Tags,
			CreatedAt: secretData.CreatedAt,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimRight(string(data), "\r\n"),
		Version: "v1",
	}, nil
}

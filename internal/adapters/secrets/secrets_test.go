package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

type fakeSecretValueAPI struct {
	output *secretsmanager.GetSecretValueOutput
	err    error
	calls  int
}

func (f *fakeSecretValueAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

type fakeLogical struct {
	secrets map[string]*vault.Secret
	paths   []string
}

func (f *fakeLogical) ReadWithContext(_ context.Context, path string) (*vault.Secret, error) {
	f.paths = append(f.paths, path)
	return f.secrets[path], nil
}

func TestSecretCache_Expiry(t *testing.T) {
	cache := newSecretCache(true, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.set("a", &ports.Secret{Value: "x"})
	require.NotNil(t, cache.get("a"))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, cache.get("a"))
}

func TestSecretCache_Disabled(t *testing.T) {
	cache := newSecretCache(false, time.Minute)
	cache.set("a", &ports.Secret{Value: "x"})
	assert.Nil(t, cache.get("a"))
}

func TestAWSSecretsManager_GetSecret(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeSecretValueAPI{output: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("sk_test_123"),
		VersionId:    aws.String("v7"),
		ARN:          aws.String("arn:aws:secretsmanager:eu-west-1:1:secret:gateway"),
		Name:         aws.String("bakery/gateway"),
		CreatedDate:  &created,
	}}
	sm := newAWSSecretsManager(api, DefaultAWSSecretsManagerConfig("eu-west-1"), zaptest.NewLogger(t))

	secret, err := sm.GetSecret(context.Background(), "bakery/gateway")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_123", secret.Value)
	assert.Equal(t, "v7", secret.Version)
	assert.Equal(t, "bakery/gateway", secret.Metadata["name"])
	assert.Equal(t, created.Format(time.RFC3339), secret.CreatedAt)

	_, err = sm.GetSecret(context.Background(), "bakery/gateway")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls, "second read should hit the cache")

	sm.Invalidate("bakery/gateway")
	_, err = sm.GetSecret(context.Background(), "bakery/gateway")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls)
}

func TestAWSSecretsManager_Error(t *testing.T) {
	api := &fakeSecretValueAPI{err: errors.New("access denied")}
	sm := newAWSSecretsManager(api, DefaultAWSSecretsManagerConfig("eu-west-1"), zaptest.NewLogger(t))

	_, err := sm.GetSecret(context.Background(), "bakery/gateway")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestVaultSecretManager_KVv2(t *testing.T) {
	logical := &fakeLogical{secrets: map[string]*vault.Secret{
		"secret/data/bakery/gateway": {Data: map[string]interface{}{
			"data": map[string]interface{}{"value": "sk_live_abc"},
			"metadata": map[string]interface{}{
				"version":      json.Number("3"),
				"created_time": "2026-02-01T00:00:00Z",
			},
		}},
	}}
	sm := newVaultSecretManager(logical, DefaultVaultConfig("http://vault:8200"), zaptest.NewLogger(t))

	secret, err := sm.GetSecret(context.Background(), "bakery/gateway")
	require.NoError(t, err)
	assert.Equal(t, "sk_live_abc", secret.Value)
	assert.Equal(t, "3", secret.Version)
	assert.Equal(t, "2026-02-01T00:00:00Z", secret.CreatedAt)
	assert.Equal(t, []string{"secret/data/bakery/gateway"}, logical.paths)
}

func TestVaultSecretManager_KVv1FirstStringValue(t *testing.T) {
	cfg := DefaultVaultConfig("http://vault:8200")
	cfg.KVVersion = "v1"
	cfg.EnableCache = false
	logical := &fakeLogical{secrets: map[string]*vault.Secret{
		"secret/bakery/gateway": {Data: map[string]interface{}{"secret_key": "sk_v1"}},
	}}
	sm := newVaultSecretManager(logical, cfg, zaptest.NewLogger(t))

	secret, err := sm.GetSecret(context.Background(), "bakery/gateway")
	require.NoError(t, err)
	assert.Equal(t, "sk_v1", secret.Value)
	assert.Equal(t, "secret_key", secret.Metadata["key"])
}

func TestVaultSecretManager_NotFound(t *testing.T) {
	sm := newVaultSecretManager(&fakeLogical{}, DefaultVaultConfig("http://vault:8200"), zaptest.NewLogger(t))

	_, err := sm.GetSecret(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret not found")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "BAKERY_GATEWAY_SECRET_KEY", EnvKey("bakery/gateway-secret.key"))
	assert.Equal(t, "GATEWAY_SECRET_KEY", EnvKey("/gateway/secret/key/"))
}

func TestEnvSecretManager(t *testing.T) {
	sm := NewEnvSecretManager(zaptest.NewLogger(t))
	sm.lookup = func(key string) (string, bool) {
		if key == "GATEWAY_SECRET_KEY" {
			return "sk_env", true
		}
		return "", false
	}

	secret, err := sm.GetSecret(context.Background(), "gateway/secret-key")
	require.NoError(t, err)
	assert.Equal(t, "sk_env", secret.Value)

	_, err = sm.GetSecret(context.Background(), "other")
	assert.Error(t, err)
}

func TestLocalSecretManager(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gateway"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway", "plain"), []byte("sk_plain\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway", "json"),
		[]byte(`{"value":"sk_json","tags":{"env":"dev"},"created_at":"2026-01-01"}`), 0o600))

	sm := NewLocalSecretManager(dir, zaptest.NewLogger(t))

	plain, err := sm.GetSecret(context.Background(), "gateway/plain")
	require.NoError(t, err)
	assert.Equal(t, "sk_plain", plain.Value)

	js, err := sm.GetSecret(context.Background(), "gateway/json")
	require.NoError(t, err)
	assert.Equal(t, "sk_json", js.Value)
	assert.Equal(t, "dev", js.Metadata["env"])

	_, err = sm.GetSecret(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret not found")
}

// Package bootstrap builds adapters from configuration for the service binaries.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	badgerstore "github.com/kevin07696/bakery-service/internal/adapters/badger"
	"github.com/kevin07696/bakery-service/internal/adapters/events"
	"github.com/kevin07696/bakery-service/internal/adapters/postgres"
	"github.com/kevin07696/bakery-service/internal/adapters/secrets"
	"github.com/kevin07696/bakery-service/internal/config"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// OpenStore opens the document store selected by STORE_DRIVER
func OpenStore(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.DocumentStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverBadger:
		store, err := badgerstore.Open(badgerstore.Config{
			Dir:      cfg.Store.BadgerDir,
			InMemory: cfg.Store.BadgerInMemory,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoreDriverPostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.Database.ConnectionString())
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns
		pool, err := postgres.NewPool(ctx, poolCfg, logger)
		if err != nil {
			return nil, err
		}
		return postgres.NewDocumentStore(pool, logger), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// NewSecretManager builds the secret manager selected by SECRET_MANAGER
func NewSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Secrets.Manager {
	case config.SecretManagerAWS:
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		awsCfg.Profile = cfg.Secrets.AWSProfile
		awsCfg.Endpoint = cfg.Secrets.AWSEndpoint
		awsCfg.CacheTTL = cfg.Secrets.CacheTTL
		sm, err := secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
		if err != nil {
			return nil, err
		}
		return sm, nil

	case config.SecretManagerVault:
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddr)
		vaultCfg.Token = cfg.Secrets.VaultToken
		vaultCfg.MountPath = cfg.Secrets.VaultMount
		vaultCfg.CacheTTL = cfg.Secrets.CacheTTL
		sm, err := secrets.NewVaultSecretManager(ctx, vaultCfg, logger)
		if err != nil {
			return nil, err
		}
		return sm, nil

	case config.SecretManagerFile:
		logger.Warn("Using file secret manager - NOT for production use!",
			zap.String("dir", cfg.Secrets.LocalDir),
		)
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalDir, logger), nil

	default:
		return secrets.NewEnvSecretManager(logger), nil
	}
}

// LoadGatewaySecret returns GATEWAY_SECRET_KEY or reads GATEWAY_SECRET_PATH from the secret manager
func LoadGatewaySecret(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Gateway.SecretKey != "" {
		return cfg.Gateway.SecretKey, nil
	}

	sm, err := NewSecretManager(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	secret, err := sm.GetSecret(ctx, cfg.Gateway.SecretPath)
	if err != nil {
		return "", err
	}

	logger.Info("Gateway secret loaded",
		zap.String("secret_manager", cfg.Secrets.Manager),
		zap.String("path", cfg.Gateway.SecretPath),
		zap.String("version", secret.Version),
	)
	return secret.Value, nil
}

// NewPublisher uses Kafka when brokers are configured and logs events otherwise
func NewPublisher(cfg *config.Config, portsLogger ports.Logger, logger *zap.Logger) ports.EventPublisher {
	brokers := events.ParseBrokers(cfg.Events.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("No KAFKA_BROKERS configured, change events are logged only")
		return events.NewLogPublisher(portsLogger)
	}

	logger.Info("Publishing change events to Kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.Events.KafkaTopic),
	)
	return events.NewKafkaPublisher(brokers, cfg.Events.KafkaTopic, portsLogger)
}

package ports

import "context"

// Secret is a value loaded from a secret backend
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretManager loads credentials such as the gateway secret key
type SecretManager interface {
	// GetSecret returns the secret stored at path
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

package tenant

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretResolver fetches per-tenant secret material (DSN, API secret).
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Close() error
}

// secretManagerResolver reads secrets from Google Secret Manager. Secrets are
// provisioned by the super-admin service when a gym is created; this side
// only ever reads the latest version.
type secretManagerResolver struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
}

// NewSecretManagerResolver builds a resolver for the given project. Secret
// ids are composed as "<prefix>-<name>".
func NewSecretManagerResolver(ctx context.Context, projectID, prefix string) (SecretResolver, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project ID is required when a secret prefix is configured")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerResolver{client: client, projectID: projectID, prefix: prefix}, nil
}

func (r *secretManagerResolver) Resolve(ctx context.Context, name string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s-%s/versions/latest", r.projectID, r.prefix, name)
	result, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", resource, err)
	}
	return string(result.Payload.Data), nil
}

func (r *secretManagerResolver) Close() error {
	return r.client.Close()
}

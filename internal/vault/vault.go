// internal/vault/vault.go
//
// Vault-backed secret source for the config loader.
//
// Context
// -------
// Secrets enter this system in exactly one place: the config loader
// rewrites `vault:<path>#<key>` leaves while building the tree, so each
// secret is read a handful of times per boot or reload and never on the
// request path.  That keeps the surface deliberately small: one Lookup
// against KV-v2 plus a background token keep-alive so Reload keeps
// working in long-lived processes.  No per-key cache; the loader holds
// the resolved values for the lifetime of the Config snapshot.
//
// Environment: VAULT_ADDR and VAULT_TOKEN, per the SDK defaults.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// Client reads KV-v2 secrets.  Safe for concurrent use; construct once
// at boot.  Zero value is invalid.
type Client struct {
	api *vault.Client
}

// New builds the client from the SDK's environment config and starts
// the token keep-alive, which stops when ctx is cancelled.
func New(ctx context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault environment: %w", err)
	}

	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		api.SetToken(tok)
	}

	c := &Client{api: api}
	go c.keepAlive(ctx)
	return c, nil
}

// Lookup fetches one string field from a KV-v2 secret.  The first path
// segment is the mount, the rest the secret path within it.
func (c *Client) Lookup(ctx context.Context, secretPath, key string) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("vault: secret path and key are required")
	}

	mount, rel, _ := strings.Cut(secretPath, "/")
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", secretPath, err)
	}

	val, ok := sec.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s has no string field %q", secretPath, key)
	}
	return val, nil
}

// keepAlive renews the token on a fixed cadence.  Renewal failures are
// logged and retried on the next tick; a non-renewable token ends the
// loop, since retrying cannot help it.
func (c *Client) keepAlive(ctx context.Context) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			zap.L().Warn("vault token renew", zap.Error(err))
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			zap.L().Info("vault token not renewable, keep-alive stopped")
			return
		}
	}
}

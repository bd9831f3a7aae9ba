// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file — first `<root>/conf/.env`, then jail-wide fallback.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `CAMPUS_`, where `__` maps to “.”
     (e.g., `CAMPUS_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, any leaf string of the form `vault:<path>#<key>` is
resolved through the supplied SecretResolver, then the tree is
unmarshalled into strongly-typed structs, validated, enriched with the
runtime root path, and cached in an `atomic.Pointer` for lock-free
reads.  `Reload()` simply calls `Load()` again and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, secret resolve, unmarshal,
    validation failures.
  • INFO  span  — final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed (bootstrap console).

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

// SecretResolver fetches one key from a secret engine.  Satisfied by
// *vault.Client; nil disables `vault:` resolution.
type SecretResolver interface {
	Lookup(ctx context.Context, secretPath, key string) (string, error)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves CAMPUS_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv("CAMPUS_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, and env overrides, resolves secrets, validates,
// and caches Config.  resolver may be nil.
func Load(ctx context.Context, resolver SecretResolver) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: CAMPUS_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("CAMPUS_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, resolver); err != nil {
		zap.S().Errorw("config secret resolve failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"telemetry", cfg.Telemetry.Enabled,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*───────────────────────── secret resolution ───────────────────────────────*/

// resolveSecrets rewrites every leaf of the form `vault:<path>#<key>`
// with the value fetched from the resolver.  Leaves missing the `#key`
// part, or present while resolver is nil, fail the load.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, resolver SecretResolver) error {
	for _, key := range k.Keys() {
		raw, ok := k.Get(key).(string)
		if !ok || !strings.HasPrefix(raw, "vault:") {
			continue
		}
		if resolver == nil {
			return fmt.Errorf("config key %q needs Vault, but no client is configured", key)
		}
		path, field, ok := strings.Cut(strings.TrimPrefix(raw, "vault:"), "#")
		if !ok {
			return fmt.Errorf("config key %q: vault URI must be vault:<path>#<key>", key)
		}
		val, err := resolver.Lookup(ctx, path, field)
		if err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context, resolver SecretResolver) error {
	_, err := Load(ctx, resolver)
	return err
}

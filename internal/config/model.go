// internal/config/model.go
//
// Typed configuration model for Campus.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                          – dotenv values,
//   • `conf/global.yaml`                       – primary static file,
//   • `CAMPUS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs—only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
	LoginURL   string `koanf:"login_url"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host,
// port, or flags without touching Vault.  The *secret* portion
// (`Password`) may carry a `vault:` URI that the loader resolves at
// boot, keeping credentials out of flat files and git history.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"required"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open"`
	MaxIdle  int    `koanf:"max_idle"`
}

//
// Telemetry section
//

// Telemetry controls page-view and asset-access capture.
type Telemetry struct {
	Enabled   bool   `koanf:"enabled"`
	GeoIPPath string `koanf:"geoip_path"`
}

//
// Security section
//

// Security holds the signing secrets.  Both may be `vault:` URIs.
type Security struct {
	SessionKey string `koanf:"session_key"`
	CSRFKey    string `koanf:"csrf_key"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or CAMPUS_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // CAMPUS_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Telemetry Telemetry `koanf:"telemetry"`
	Security  Security  `koanf:"security"`
	Paths     Paths     `koanf:"-"` // not loaded from config files
}

// internal/config/loader_test.go
//
// Unit-tests for `vault:` URI resolution in the config tree.

package config

import (
	"context"
	"fmt"
	"testing"

	koanf "github.com/knadh/koanf/v2"
)

// fakeResolver satisfies SecretResolver from a map.
type fakeResolver struct {
	vals  map[string]string
	calls int
}

func (f *fakeResolver) Lookup(_ context.Context, secretPath, key string) (string, error) {
	f.calls++
	v, ok := f.vals[secretPath+"#"+key]
	if !ok {
		return "", fmt.Errorf("no secret at %s#%s", secretPath, key)
	}
	return v, nil
}

func TestResolveSecrets_RewritesVaultURIs(t *testing.T) {
	k := koanf.New(".")
	_ = k.Set("database.password", "vault:secret/campus/db#password")
	_ = k.Set("http.listen_addr", ":8080")

	r := &fakeResolver{vals: map[string]string{"secret/campus/db#password": "hunter2"}}
	if err := resolveSecrets(context.Background(), k, r); err != nil {
		t.Fatalf("resolveSecrets: %v", err)
	}

	if got := k.String("database.password"); got != "hunter2" {
		t.Fatalf("database.password = %q, want the resolved secret", got)
	}
	if got := k.String("http.listen_addr"); got != ":8080" {
		t.Fatalf("http.listen_addr = %q, plain values must pass through", got)
	}
	if r.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", r.calls)
	}
}

func TestResolveSecrets_RequiresResolver(t *testing.T) {
	k := koanf.New(".")
	_ = k.Set("security.csrf_key", "vault:secret/campus/web#csrf")

	if err := resolveSecrets(context.Background(), k, nil); err == nil {
		t.Fatal("a vault: value with no resolver must fail the load")
	}
}

func TestResolveSecrets_MalformedURI(t *testing.T) {
	k := koanf.New(".")
	_ = k.Set("security.csrf_key", "vault:secret/campus/web")

	r := &fakeResolver{}
	if err := resolveSecrets(context.Background(), k, r); err == nil {
		t.Fatal("a vault: URI without #key must fail the load")
	}
	if r.calls != 0 {
		t.Fatalf("resolver called %d times for a malformed URI, want 0", r.calls)
	}
}

func TestResolveSecrets_LookupFailureFailsLoad(t *testing.T) {
	k := koanf.New(".")
	_ = k.Set("database.password", "vault:secret/campus/db#password")

	r := &fakeResolver{} // empty: every lookup errors
	if err := resolveSecrets(context.Background(), k, r); err == nil {
		t.Fatal("a failed secret lookup must fail the load")
	}
}

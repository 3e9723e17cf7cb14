package repo

import (
	"fmt"
	"testing"

	"github.com/shipq/tenantdb/tenant"
)

func TestLoaderCacheSegregatesTenants(t *testing.T) {
	cfg := scopedCfg()
	cfg.Resolve = map[string]Resolver{"byEmail": {Field: "email"}}
	r := testRepo(t, cfg)
	res := cfg.Resolve["byEmail"]

	a := r.loaderFor(tenantCtx("t1"), "byEmail", res)
	b := r.loaderFor(tenantCtx("t2"), "byEmail", res)
	if a == b {
		t.Error("expected distinct loaders per tenant")
	}
	if again := r.loaderFor(tenantCtx("t1"), "byEmail", res); again != a {
		t.Error("expected the same loader on repeat use")
	}
}

func TestLoaderCacheBounded(t *testing.T) {
	cfg := scopedCfg()
	cfg.Resolve = map[string]Resolver{"byEmail": {Field: "email"}}
	r := testRepo(t, cfg)
	res := cfg.Resolve["byEmail"]

	for i := 0; i < maxLoaders*2; i++ {
		r.loaderFor(tenantCtx(tenant.ID(fmt.Sprintf("t%d", i))), "byEmail", res)
	}
	if len(r.loaders) > maxLoaders {
		t.Errorf("expected at most %d cached loaders, got %d", maxLoaders, len(r.loaders))
	}
	if len(r.loaderKeys) != len(r.loaders) {
		t.Errorf("expected key list to track the map, got %d keys for %d loaders",
			len(r.loaderKeys), len(r.loaders))
	}
	// The most recent loader survives eviction.
	newest := fmt.Sprintf("byEmail\x1ft%d", maxLoaders*2-1)
	if _, ok := r.loaders[newest]; !ok {
		t.Error("expected the most recent loader to stay cached")
	}
}

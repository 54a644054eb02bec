package auth

import (
	"context"
	"fmt"
	"strings"
)

// Identity pins an API key to the tenant whose data it may touch.
type Identity struct {
	TenantID string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a "key:tenant,key:tenant" spec.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		key, tenant, found := strings.Cut(strings.TrimSpace(entry), ":")
		key = strings.TrimSpace(key)
		tenant = strings.TrimSpace(tenant)
		if !found || key == "" || tenant == "" {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:tenant", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate static key entry %q", entry)
		}
		validator.keys[key] = Identity{TenantID: tenant}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// internal/common/auth/resolver.go
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crissins/admit-care/internal/common/config"
	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
)

// EndpointKind names one of the two upstream dependencies.
type EndpointKind string

const (
	EndpointModel  EndpointKind = "model"
	EndpointSearch EndpointKind = "search"
)

// Resolver decides, from configuration, whether each upstream endpoint is
// authorized with a static key or with the shared federated credential.
// Resolution is deterministic: a static key always wins for its endpoint;
// endpoints without a key share a single federated credential instance so
// identity negotiation happens once per process.
type Resolver struct {
	modelKey  string
	searchKey string
	identity  config.IdentityConfig
	federated *FederatedCredential
	log       logger.Logger
}

func NewResolver(cfg *config.Config, log logger.Logger) *Resolver {
	return &Resolver{
		modelKey:  cfg.Model.APIKey,
		searchKey: cfg.Search.APIKey,
		identity:  cfg.Identity,
		log:       log.With(map[string]interface{}{"component": "auth"}),
	}
}

// Resolve returns the credential for the given endpoint kind. Called once
// at startup per kind; the result is read-only afterwards.
func (r *Resolver) Resolve(kind EndpointKind) (Credential, error) {
	switch kind {
	case EndpointModel:
		if r.modelKey != "" {
			return NewKeyCredential(r.modelKey), nil
		}
	case EndpointSearch:
		if r.searchKey != "" {
			return NewKeyCredential(r.searchKey), nil
		}
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", kind)
	}
	return r.sharedFederated(), nil
}

// sharedFederated lazily constructs the single federated credential shared
// by every endpoint that lacks a static key.
func (r *Resolver) sharedFederated() *FederatedCredential {
	if r.federated != nil {
		return r.federated
	}

	if r.identity.TenantID != "" {
		r.log.Info("using tenant-scoped federated credential", map[string]interface{}{
			"tenantId": r.identity.TenantID,
		})
		r.federated = NewTenantFederatedCredential(r.identity, r.identity.TenantID, config.GetDuration(r.identity.Timeout))
	} else {
		r.log.Info("using ambient federated credential", nil)
		r.federated = NewAmbientFederatedCredential(r.identity)
	}
	return r.federated
}

// Probe acquires one token through the federated credential, if any
// endpoint relies on it. A failure here is fatal at startup: no session can
// proceed without a working credential, so the caller must abort rather
// than retry.
func (r *Resolver) Probe(ctx context.Context) error {
	if r.modelKey != "" && r.searchKey != "" {
		return nil
	}
	h := make(http.Header)
	if err := r.sharedFederated().Apply(ctx, h); err != nil {
		return errors.NewTokenAcquisitionError(err)
	}
	return nil
}

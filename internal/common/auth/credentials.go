// internal/common/auth/credentials.go
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/crissins/admit-care/internal/common/config"
)

// Credential is an opaque capability authorizing calls to one upstream
// endpoint. Exactly one concrete form is active per endpoint.
type Credential interface {
	// Apply injects the authorization material into the request headers.
	Apply(ctx context.Context, h http.Header) error
}

// KeyCredential wraps a static API key.
type KeyCredential struct {
	secret string
}

func NewKeyCredential(secret string) *KeyCredential {
	return &KeyCredential{secret: secret}
}

func (c *KeyCredential) Apply(_ context.Context, h http.Header) error {
	h.Set("api-key", c.secret)
	return nil
}

// FederatedCredential is an identity-provider-issued authorization handle.
// Tokens are cached and refreshed transparently by the underlying source.
type FederatedCredential struct {
	mode   string
	source oauth2.TokenSource
}

// Mode reports which federated form is in use ("tenant" or "ambient").
func (c *FederatedCredential) Mode() string { return c.mode }

func (c *FederatedCredential) Apply(_ context.Context, h http.Header) error {
	tok, err := c.source.Token()
	if err != nil {
		return fmt.Errorf("federated token acquisition: %w", err)
	}
	h.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// NewTenantFederatedCredential builds a tenant-scoped client-credentials
// token source with a bounded acquisition timeout.
func NewTenantFederatedCredential(cfg config.IdentityConfig, tenant string, timeout time.Duration) *FederatedCredential {
	tokenURL := cfg.TokenURL
	if strings.Contains(tokenURL, "%s") {
		tokenURL = fmt.Sprintf(tokenURL, tenant)
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{cfg.Scope},
	}

	// Bound every token round trip, including transparent refreshes.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	return &FederatedCredential{
		mode:   "tenant",
		source: cc.TokenSource(ctx),
	}
}

// NewAmbientFederatedCredential builds a credential from whatever ambient
// identity the process runs with: an explicit bearer token, a projected
// token file, or client credentials against the configured token URL.
func NewAmbientFederatedCredential(cfg config.IdentityConfig) *FederatedCredential {
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TokenURL != "" && !strings.Contains(cfg.TokenURL, "%s") {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{cfg.Scope},
		}
		return &FederatedCredential{mode: "ambient", source: cc.TokenSource(context.Background())}
	}
	return &FederatedCredential{
		mode:   "ambient",
		source: oauth2.ReuseTokenSource(nil, &ambientTokenSource{tokenFile: cfg.TokenFile}),
	}
}

// ambientTokenSource reads a bearer token from the environment or from a
// projected token file. The file is re-read on refresh so externally
// rotated tokens are picked up.
type ambientTokenSource struct {
	tokenFile string
}

func (s *ambientTokenSource) Token() (*oauth2.Token, error) {
	if tok := os.Getenv("IDENTITY_TOKEN"); tok != "" {
		return &oauth2.Token{
			AccessToken: tok,
			Expiry:      time.Now().Add(5 * time.Minute),
		}, nil
	}

	if s.tokenFile != "" {
		data, err := os.ReadFile(s.tokenFile)
		if err != nil {
			return nil, fmt.Errorf("read ambient token file: %w", err)
		}
		tok := strings.TrimSpace(string(data))
		if tok == "" {
			return nil, fmt.Errorf("ambient token file %s is empty", s.tokenFile)
		}
		return &oauth2.Token{
			AccessToken: tok,
			Expiry:      time.Now().Add(5 * time.Minute),
		}, nil
	}

	return nil, fmt.Errorf("no ambient identity available: set IDENTITY_TOKEN, identity.token_file, or identity client credentials")
}

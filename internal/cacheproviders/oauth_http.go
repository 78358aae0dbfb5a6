package cacheproviders

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// NewOAuthHTTPProvider builds an HTTPProvider that authorizes every request
// with a bearer token obtained (and refreshed) via OAuth2 client-credential
// flow, for binary-cache backends that require a refreshable token rather
// than a static header.
func NewOAuthHTTPProvider(urlTemplate string, access cacheconfig.Access, cfg clientcredentials.Config) *HTTPProvider {
	p := NewHTTPProvider(urlTemplate, "", access)
	tokenSource := cfg.TokenSource(context.Background())
	p.authorize = func(ctx context.Context, req *http.Request) error {
		tok, err := tokenSource.Token()
		if err != nil {
			return fmt.Errorf("obtaining oauth2 token: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
	return p
}

package cacheproviders

import (
	"context"
	"net/http"
	"strings"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// NewAzBlobProvider builds an HTTPProvider configured for Azure Blob
// Storage: the SAS token is appended to every request URL as a query
// string, and PUT requests carry the "x-ms-blob-type: BlockBlob" header
// Azure's flat namespace blob API requires (spec.md §4.7).
func NewAzBlobProvider(baseURL, sas string, access cacheconfig.Access) *HTTPProvider {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	tmpl := baseURL + "/{sha}" + sep + sas
	p := NewHTTPProvider(tmpl, "", access)
	p.authorize = func(ctx context.Context, req *http.Request) error {
		if req.Method == http.MethodPut {
			req.Header.Set("x-ms-blob-type", "BlockBlob")
		}
		return nil
	}
	return p
}

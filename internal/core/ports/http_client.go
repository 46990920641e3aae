package ports

import "context"

// APIRequest describes a single call to the remote API. The bearer token
// travels with the request instead of living on the client.
type APIRequest struct {
	Method string
	Path   string
	// Query values that are nil (or nil pointers) are skipped.
	Query       map[string]any
	Header      map[string]string
	Body        any
	BearerToken string
}

// HTTPClient performs an APIRequest and decodes a 2xx JSON body into out.
// Failures are returned as *domain.APIError.
type HTTPClient interface {
	Do(ctx context.Context, req APIRequest, out any) error
}

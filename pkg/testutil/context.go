package testutil

import (
	"context"
	"net/http"

	id "nftregistry/pkg/domain"
	"nftregistry/pkg/requestcontext"
)

// WithAccount adds an authenticated account to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// An invalid account id is not added.
func WithAccount(req *http.Request, account string) *http.Request {
	if parsed, err := id.ParseAccountID(account); err == nil {
		return req.WithContext(requestcontext.WithAccount(req.Context(), parsed))
	}
	return req
}

// WithRequestID tags the request the way the request id middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}

package http

import "context"

// Signer adds signature headers to a request in place.
type Signer interface {
	Sign(ctx context.Context, req *Request) error
}

// NopSigner leaves requests untouched.
type NopSigner struct{}

func (NopSigner) Sign(context.Context, *Request) error { return nil }

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, req *Request) error

func (f SignerFunc) Sign(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

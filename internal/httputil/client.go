// Package httputil builds the *http.Client shared by every cache backend
// that speaks HTTP directly (internal/cacheproviders' http.go, gha.go, and
// oauth_http.go): a client hardened against SSRF via redirect validation,
// with compression disabled by default so an untrusted cache source can't
// abuse decompression to balloon memory use.
package httputil

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes NewSecureClient. Zero-valued fields fall back to
// DefaultOptions' values.
type ClientOptions struct {
	// Timeout bounds an entire request, including redirects. Zero means 30s.
	Timeout time.Duration

	// DialTimeout bounds establishing the TCP connection. Zero means 30s.
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake. Zero means 10s.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers after the
	// request is sent. Zero means 10s.
	ResponseHeaderTimeout time.Duration

	// MaxRedirects caps how many redirects a single request may follow.
	// Zero means 10.
	MaxRedirects int

	// EnableCompression turns on request compression negotiation. Off by
	// default: an untrusted cache source gets no chance to return a
	// decompression bomb disguised as a small response.
	EnableCompression bool

	// MaxIdleConns caps idle pooled connections. Zero means 10.
	MaxIdleConns int

	// IdleConnTimeout bounds how long an idle connection stays pooled.
	// Zero means 90s.
	IdleConnTimeout time.Duration
}

// DefaultOptions returns the hardened defaults every cache backend starts
// from before overriding individual fields.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		Timeout:               30 * time.Second,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxRedirects:          10,
		EnableCompression:     false,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewSecureClient builds an *http.Client that refuses to follow a redirect
// off HTTPS or into a private, loopback, link-local, multicast, or
// unspecified address — closing the "cache source config points at an
// internal URL" SSRF hole. Zero fields in opts fall back to
// DefaultOptions' values.
func NewSecureClient(opts ClientOptions) *http.Client {
	fillDefaults(&opts)

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			DisableCompression: !opts.EnableCompression,
			DialContext: (&net.Dialer{
				Timeout:   opts.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          opts.MaxIdleConns,
			IdleConnTimeout:       opts.IdleConnTimeout,
		},
		CheckRedirect: makeRedirectChecker(opts.MaxRedirects),
	}
}

// fillDefaults replaces each zero field of opts with DefaultOptions' value.
func fillDefaults(opts *ClientOptions) {
	d := DefaultOptions()
	if opts.Timeout == 0 {
		opts.Timeout = d.Timeout
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = d.DialTimeout
	}
	if opts.TLSHandshakeTimeout == 0 {
		opts.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if opts.ResponseHeaderTimeout == 0 {
		opts.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = d.MaxRedirects
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = d.MaxIdleConns
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = d.IdleConnTimeout
	}
}

// makeRedirectChecker returns an http.Client.CheckRedirect func enforcing
// the HTTPS-only, bounded-depth, non-internal-address redirect policy
// described on NewSecureClient.
func makeRedirectChecker(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "https" {
			return fmt.Errorf("redirect to non-HTTPS URL is not allowed: %s", req.URL)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects")
		}
		return validateRedirectHost(req.URL.Hostname())
	}
}

// validateRedirectHost resolves host (unless it's already a literal IP)
// and validates every resulting address, so a hostname that rebinds
// between a public and an internal IP can't slip a redirect through.
func validateRedirectHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return ValidateIP(ip, host)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve redirect host %s: %w", host, err)
	}
	for _, ip := range ips {
		if err := ValidateIP(ip, host); err != nil {
			return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
		}
	}
	return nil
}

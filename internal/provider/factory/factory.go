package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"gemini-relay/internal/config"
	"gemini-relay/internal/provider"
	"gemini-relay/internal/provider/gemini"
	"gemini-relay/internal/tokenizer"
)

const (
	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
func RegisterConfiguredProviders(ctx context.Context, cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	estimator := tokenizer.NewEstimator()

	adapter := gemini.NewAdapter(gemini.Options{
		FinishReason: cfg.Relay.FinishReason,
		StreamModel:  cfg.Relay.StreamModel,
		Counter:      estimator,
	})

	geminiProvider, err := gemini.New("gemini", cfg.Providers.Gemini, newHTTPClient(defaultHTTPTimeout), adapter, estimator)
	if err != nil {
		return fmt.Errorf("initialise gemini provider: %w", err)
	}
	if err := registry.RegisterProvider(ctx, geminiProvider, cfg.Providers.Gemini.Aliases); err != nil {
		return fmt.Errorf("register gemini provider: %w", err)
	}

	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
)

// Credentials locate an OpenAI-compatible endpoint.
type Credentials struct {
	BaseURL string
	APIKey  string
}

// Complete reports whether both the base URL and the key are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.APIKey) != ""
}

type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials always returns the same credentials.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// ChainCredentials returns the first complete credentials found, asking
// providers in order. Provider errors are collected and returned only when
// no provider has complete credentials.
type ChainCredentials []CredentialsProvider

func (c ChainCredentials) Credentials(ctx context.Context) (Credentials, error) {
	var errs []error

	for _, p := range c {
		if p == nil {
			continue
		}

		creds, err := p.Credentials(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if creds.Complete() {
			return creds, nil
		}
	}

	return Credentials{}, errors.Join(errs...)
}

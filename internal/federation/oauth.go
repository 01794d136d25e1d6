package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultHTTPTimeout = 10 * time.Second

// codeExchanger wraps an oauth2.Config so every adapter exchanges codes the
// same way, with a bounded HTTP client and a per-call redirect URI.
type codeExchanger struct {
	config     oauth2.Config
	httpClient *http.Client
}

func newCodeExchanger(cfg oauth2.Config, client *http.Client) codeExchanger {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return codeExchanger{config: cfg, httpClient: client}
}

func (e codeExchanger) exchange(ctx context.Context, code, redirectURI string, opts ...oauth2.AuthCodeOption) (*TokenSet, error) {
	cfg := e.config
	cfg.RedirectURL = redirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = idToken
	}
	return set, nil
}

// getJSON performs an authenticated GET and decodes the body into out.
func (e codeExchanger) getJSON(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode profile: %w", err)
	}
	return nil
}

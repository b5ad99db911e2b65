// Package auth runs the OAuth flows for the cloud-drive backends and keeps
// their tokens under the config directory.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"modsync/internal/config"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
)

type Provider interface {
	Name() string
	Authorize() error
}

type GDriveProvider interface {
	Provider
	NewService(ctx context.Context) (*drive.Service, error)
}

type DropboxProvider interface {
	Provider
	NewClient(ctx context.Context) (files.Client, error)
}

var (
	GDrive  GDriveProvider  = &gdriveProvider{}
	Dropbox DropboxProvider = &dropboxProvider{}
)

// Providers lists every provider by the name used on the command line.
var Providers = map[string]Provider{
	GDrive.Name():  GDrive,
	Dropbox.Name(): Dropbox,
}

func saveToken(file string, token *oauth2.Token) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Printf("Token saved to %s\n", path)
	return nil
}

func loadToken(file, provider string) (*oauth2.Token, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("%s auth needed. Please run 'modsync auth %s' first: %w", provider, provider, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse %s token: %w", provider, err)
	}

	return &token, nil
}

func readCredentials(file string) ([]byte, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", file, dir, err)
	}

	return b, nil
}

// refreshedSource wraps cfg's token source and persists a refreshed token.
func refreshedSource(ctx context.Context, cfg *oauth2.Config, file, provider string) (oauth2.TokenSource, *oauth2.Token, error) {
	token, err := loadToken(file, provider)
	if err != nil {
		return nil, nil, err
	}

	ts := cfg.TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh %s token: %w", provider, err)
	}

	if fresh.AccessToken != token.AccessToken {
		_ = saveToken(file, fresh)
	}

	return ts, fresh, nil
}

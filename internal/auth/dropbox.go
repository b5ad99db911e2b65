package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"
)

const (
	dropboxCredFile     = "dropbox_credentials.json"
	dropboxTokenFile    = "dropbox_token.json"
	dropboxCallbackAddr = "localhost:9999"
)

type dropboxCredentials struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

var dropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

type dropboxProvider struct{}

func (p *dropboxProvider) Name() string {
	return "dropbox"
}

func (p *dropboxProvider) config() (*oauth2.Config, error) {
	b, err := readCredentials(dropboxCredFile)
	if err != nil {
		return nil, err
	}

	var creds dropboxCredentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse dropbox credentials: %w", err)
	}

	return &oauth2.Config{
		ClientID:     creds.AppKey,
		ClientSecret: creds.AppSecret,
		Endpoint:     dropboxEndpoint,
		RedirectURL:  "http://" + dropboxCallbackAddr + "/callback",
		Scopes:       []string{"files.content.read", "files.content.write"},
	}, nil
}

func (p *dropboxProvider) Authorize() error {
	cfg, err := p.config()
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("token_access_type", "offline"))

	fmt.Println("Visit the URL for the auth dialog:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println()

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		select {
		case codeCh <- r.URL.Query().Get("code"):
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintln(w, "<h2>Authentication complete! Now you can close this window and return to the terminal.</h2>")
	})
	srv := &http.Server{Addr: dropboxCallbackAddr, Handler: mux}

	go func() { _ = srv.ListenAndServe() }()

	fmt.Println("Authentication will complete after you log on via browser...")

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)

		token, err := cfg.Exchange(context.Background(), code)
		if err != nil {
			return fmt.Errorf("failed to exchange token: %w", err)
		}

		return saveToken(dropboxTokenFile, token)

	case <-time.After(2 * time.Minute):
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("authorization timed out")
	}
}

func (p *dropboxProvider) NewClient(ctx context.Context) (files.Client, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, err
	}

	_, token, err := refreshedSource(ctx, cfg, dropboxTokenFile, p.Name())
	if err != nil {
		return nil, err
	}

	return files.New(dropbox.Config{Token: token.AccessToken}), nil
}

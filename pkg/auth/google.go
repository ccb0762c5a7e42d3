package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const (
	// ClientSecretsFile is the name of the downloaded Google API credentials
	// file, looked up in the config directory.
	ClientSecretsFile = "credentials.json"

	// LocalhostAuthPort is the port the local web server listens on to
	// capture the OAuth redirect.
	LocalhostAuthPort = "6789"
)

// ErrNotAuthorized means no usable Google token is cached.
var ErrNotAuthorized = errors.New("google calendar is not authorized; run `anytoggl auth google`")

// CalendarScopes are the scopes the calendar destination needs.
var CalendarScopes = []string{
	calendar.CalendarScope,
}

// GoogleConfig builds an oauth2.Config from the client secrets file, forcing
// the redirect URL onto the local callback port.
func GoogleConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credentialsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsedURL, parseErr := url.Parse(config.RedirectURL)
	switch {
	case parseErr != nil:
		slog.Warn("could not parse redirect URL, using it as is", "redirect_url", config.RedirectURL, "error", parseErr)
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob":
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		slog.Info("overriding out-of-band redirect URL", "redirect_url", config.RedirectURL)
	case parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1":
		if parsedURL.Port() != LocalhostAuthPort {
			// The listener below is bound to LocalhostAuthPort, so the
			// redirect must point there.
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
		}
	default:
		slog.Warn("redirect URL is neither a localhost callback nor out-of-band", "redirect_url", config.RedirectURL)
	}

	return config, nil
}

// GoogleTokenSource serves the cached Google token, refreshing it when it
// nears expiry. It never starts the interactive flow.
func GoogleTokenSource(ctx context.Context, store *TokenStore, config *oauth2.Config, buffer time.Duration) (oauth2.TokenSource, error) {
	notAuthorized := func(context.Context) (*oauth2.Token, error) {
		return nil, ErrNotAuthorized
	}
	refresh := func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	}
	return NewCachingTokenSource(ctx, store, KeyGoogle, buffer, notAuthorized, refresh)
}

// AuthorizeGoogle runs the authorization code flow through a local web
// server and caches the resulting token, replacing any previous one.
func AuthorizeGoogle(ctx context.Context, store *TokenStore, config *oauth2.Config) error {
	tok, err := tokenFromWeb(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	return store.Save(ctx, KeyGoogle, tok)
}

func tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				errCh <- fmt.Errorf("authorization code not found in redirect URL")
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	defer server.Shutdown(context.Background())

	// AccessTypeOffline is what makes Google return a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize anytoggl:\n%s\n", authURL)
	slog.Info("waiting for authorization code", "redirect_url", config.RedirectURL)

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

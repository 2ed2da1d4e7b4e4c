package remote

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"

	"declutter-go/internal/config"
)

var defaultTokenURLs = map[string]string{
	"onedrive":     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	"googledrive":  "https://oauth2.googleapis.com/token",
	"googlephotos": "https://oauth2.googleapis.com/token",
	"dropbox":      "https://api.dropboxapi.com/oauth2/token",
}

// tokenSource builds the token source for a provider. A refresh token takes
// precedence and is exchanged at the provider's token endpoint; otherwise a
// static access token is used.
func tokenSource(ctx context.Context, cfg config.ProviderConfig) (oauth2.TokenSource, error) {
	if cfg.RefreshTokenEnv != "" {
		refresh := os.Getenv(cfg.RefreshTokenEnv)
		if refresh == "" {
			return nil, fmt.Errorf("%s: %s is not set", cfg.ProviderName(), cfg.RefreshTokenEnv)
		}
		oc := &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{TokenURL: orDefault(cfg.TokenURL, defaultTokenURLs[cfg.Type])},
		}
		if cfg.ClientSecretEnv != "" {
			oc.ClientSecret = os.Getenv(cfg.ClientSecretEnv)
		}
		return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}), nil
	}

	if cfg.AccessTokenEnv == "" {
		return nil, fmt.Errorf("%s: access_token_env or refresh_token_env is required", cfg.ProviderName())
	}
	token := os.Getenv(cfg.AccessTokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%s: %s is not set", cfg.ProviderName(), cfg.AccessTokenEnv)
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
}

func oauthClient(ctx context.Context, cfg config.ProviderConfig) (*http.Client, error) {
	ts, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts)), nil
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// discordEndpoint holds Discord's OAuth2 URLs. Unlike GitHub, x/oauth2 ships
// no pre-defined endpoint for Discord, so we declare it ourselves.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// discordUserURL returns the authenticated user's profile.
const discordUserURL = "https://discord.com/api/users/@me"

// DiscordProvider wraps golang.org/x/oauth2 for the Discord Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the user to Discord's authorization endpoint with our ClientID and scopes.
//  2. The user approves (or denies) on Discord.
//  3. Discord redirects back to CallbackURL with a short-lived "code".
//  4. We exchange the code for an access token (server-to-server, uses ClientSecret).
//  5. We call /users/@me with the access token to get the profile.
type DiscordProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewDiscordProvider creates a DiscordProvider with the given credentials.
//
// Scopes we request:
//   - "identify": id, username, discriminator, avatar
//   - "email":    the verified email, used to link an existing account
func NewDiscordProvider(clientID, clientSecret, callbackURL string) *DiscordProvider {
	return newDiscordProvider(clientID, clientSecret, callbackURL, discordEndpoint, discordUserURL)
}

// newDiscordProvider lets tests point the provider at an httptest server.
func newDiscordProvider(clientID, clientSecret, callbackURL string, endpoint oauth2.Endpoint, userURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"identify", "email"},
			Endpoint:     endpoint,
		},
		userURL: userURL,
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
// state must be echoed back by Discord and checked against the state cookie.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for the
// caller's Discord profile.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordProfile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building Discord profile request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord /users/@me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord /users/@me returned status %d", resp.StatusCode)
	}

	var profile DiscordProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("auth: decoding Discord profile: %w", err)
	}

	if profile.ID == "" {
		return nil, fmt.Errorf("auth: Discord returned a profile without id")
	}

	return &profile, nil
}

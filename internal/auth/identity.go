package auth

import (
	"fmt"
	"strconv"
	"strings"
)

// ProviderDiscord is the only external identity provider wired today.
const ProviderDiscord = "discord"

// discordCDN is where Discord serves avatars.
const discordCDN = "https://cdn.discordapp.com"

// defaultAvatarCount is how many built-in "embed" avatars Discord ships (0..4).
const defaultAvatarCount = 5

// animatedAvatarPrefix marks an avatar hash whose image is a GIF.
const animatedAvatarPrefix = "a_"

// DiscordProfile is the portion of Discord's /users/@me response we care about.
//
// Discord API docs: https://discord.com/developers/docs/resources/user#user-object
//
// Avatar is a pointer because Discord sends `"avatar": null` for users who
// never uploaded one. That is different from an empty string, and we want to keep
// that difference visible.
type DiscordProfile struct {
	ID            string  `json:"id"`            // snowflake, stable, never changes
	Username      string  `json:"username"`      // display handle
	Discriminator string  `json:"discriminator"` // "0007" (legacy 4-digit tag, "0" for new usernames)
	Avatar        *string `json:"avatar"`        // avatar hash, nil when unset
	Email         string  `json:"email"`         // only present with the "email" scope
}

// Identity is the provider-neutral record the directory stores.
type Identity struct {
	Provider      string
	ExternalID    string
	DisplayName   string
	AvatarURL     string
	Discriminator string
	Email         string
}

// NormalizeDiscordProfile turns a Discord profile into an Identity.
//
// AVATAR DERIVATION:
//   - no avatar hash   → one of the five default avatars, picked by
//     discriminator mod 5:  .../embed/avatars/{n}.png
//   - hash "a_..."     → animated:  .../avatars/{id}/{hash}.gif
//   - any other hash   → static:    .../avatars/{id}/{hash}.png
//
// The function is pure: the same profile always produces the same Identity.
// That matters because it runs on every sign-in and its output overwrites the
// stored profile.
func NormalizeDiscordProfile(p DiscordProfile) (Identity, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Identity{}, fmt.Errorf("auth: discord profile has no id")
	}

	return Identity{
		Provider:      ProviderDiscord,
		ExternalID:    p.ID,
		DisplayName:   p.Username,
		AvatarURL:     DiscordAvatarURL(p.ID, p.Avatar, p.Discriminator),
		Discriminator: p.Discriminator,
		Email:         strings.TrimSpace(p.Email),
	}, nil
}

// DiscordAvatarURL builds the CDN URL for a user's avatar.
func DiscordAvatarURL(userID string, avatarHash *string, discriminator string) string {
	if avatarHash == nil || *avatarHash == "" {
		return fmt.Sprintf("%s/embed/avatars/%d.png", discordCDN, DefaultAvatarIndex(discriminator))
	}

	format := "png"
	if strings.HasPrefix(*avatarHash, animatedAvatarPrefix) {
		format = "gif"
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s", discordCDN, userID, *avatarHash, format)
}

// DefaultAvatarIndex picks one of the default avatars: discriminator mod 5.
//
// A discriminator that doesn't parse as a number ("", "abcd") falls back to
// avatar 0 rather than failing the sign-in.
func DefaultAvatarIndex(discriminator string) int {
	n, err := strconv.Atoi(strings.TrimSpace(discriminator))
	if err != nil || n < 0 {
		return 0
	}
	return n % defaultAvatarCount
}

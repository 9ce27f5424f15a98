// Package credentials loads Discord credentials from .env files and the
// process environment.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when no env file is named.
const DefaultEnvFile = ".env"

// Credentials identifies the bot application and its target guild.
type Credentials struct {
	// Token authenticates gateway and REST calls.
	Token string `env:"DISCORD_TOKEN"`
	// ClientID is the application id commands are registered under.
	ClientID string `env:"CLIENT_ID"`
	// GuildID scopes command registration to one guild.
	GuildID string `env:"GUILD_ID"`
}

// Load merges env files into the process environment and parses it.
// Variables that are already set win, earlier files win over later ones, and
// missing files are ignored. Merged variables stay in the process environment
// so child processes inherit them.
func Load(envFiles ...string) (Credentials, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return Credentials{}, err
	}

	return parseFrom(processEnvironment())
}

func loadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFile}
	}

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	return nil
}

func processEnvironment() map[string]string {
	environment := make(map[string]string)
	for _, pair := range os.Environ() {
		if key, value, found := strings.Cut(pair, "="); found {
			environment[key] = value
		}
	}

	return environment
}

func parseFrom(environment map[string]string) (Credentials, error) {
	var creds Credentials
	if err := env.ParseWithOptions(&creds, env.Options{Environment: environment}); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}

	return creds.trimmed(), nil
}

// RequireDeploy reports every variable command registration needs but lacks.
func (c Credentials) RequireDeploy() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.GuildID == "" {
		missing = append(missing, "GUILD_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}

	return nil
}

func (c Credentials) trimmed() Credentials {
	return Credentials{
		Token:    strings.TrimSpace(c.Token),
		ClientID: strings.TrimSpace(c.ClientID),
		GuildID:  strings.TrimSpace(c.GuildID),
	}
}

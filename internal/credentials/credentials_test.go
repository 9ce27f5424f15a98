package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFromEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		environment   map[string]string
		want          Credentials
		wantDeployErr string
	}{
		{
			name: "all variables present",
			environment: map[string]string{
				"DISCORD_TOKEN": " token ",
				"CLIENT_ID":     "1180000000000000001",
				"GUILD_ID":      "1180000000000000002",
			},
			want: Credentials{Token: "token", ClientID: "1180000000000000001", GuildID: "1180000000000000002"},
		},
		{
			name:          "token only is enough for the bot",
			environment:   map[string]string{"DISCORD_TOKEN": "token"},
			want:          Credentials{Token: "token"},
			wantDeployErr: "CLIENT_ID, GUILD_ID",
		},
		{
			name:          "nothing set",
			environment:   map[string]string{},
			wantDeployErr: "DISCORD_TOKEN, CLIENT_ID, GUILD_ID",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			creds, err := parseFrom(testCase.environment)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if creds != testCase.want {
				t.Fatalf("credentials = %+v, want %+v", creds, testCase.want)
			}

			err = creds.RequireDeploy()
			if testCase.wantDeployErr == "" {
				if err != nil {
					t.Fatalf("RequireDeploy failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantDeployErr) {
				t.Fatalf("RequireDeploy error = %v, want containing %q", err, testCase.wantDeployErr)
			}
		})
	}
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "DISCORD_TOKEN=file-token\nCLIENT_ID=file-client\nGUILD_ID=file-guild\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("CLIENT_ID", "")
	t.Setenv("GUILD_ID", "shell-guild")
	os.Unsetenv("DISCORD_TOKEN")
	os.Unsetenv("CLIENT_ID")

	creds, err := Load(envFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := Credentials{Token: "file-token", ClientID: "file-client", GuildID: "shell-guild"}
	if creds != want {
		t.Fatalf("credentials = %+v, want %+v", creds, want)
	}
}

func TestLoadExportsFileValuesForChildProcesses(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	if err := os.WriteFile(first, []byte("DISCORD_TOKEN=first-token\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	if err := os.WriteFile(second, []byte("DISCORD_TOKEN=second-token\nCLIENT_ID=client\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("CLIENT_ID", "")
	os.Unsetenv("DISCORD_TOKEN")
	os.Unsetenv("CLIENT_ID")

	creds, err := Load(first, filepath.Join(dir, "missing.env"), second)
	if err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
	if creds.Token != "first-token" || creds.ClientID != "client" {
		t.Fatalf("credentials = %+v, want earlier files to win", creds)
	}
	if got := os.Getenv("DISCORD_TOKEN"); got != "first-token" {
		t.Fatalf("process DISCORD_TOKEN = %q, want first-token", got)
	}
}

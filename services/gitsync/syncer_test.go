package gitsync

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEALER_WANT_HELPER_PROCESS") == "1" {
		switch os.Getenv("DEALER_HELPER_MODE") {
		case "up-to-date":
			os.Stdout.WriteString("Already up to date.\n")
			os.Exit(0)
		case "not-a-repo":
			os.Stderr.WriteString("fatal: not a git repository\n")
			os.Exit(128)
		}
		os.Exit(2)
	}

	goleak.VerifyTestMain(m)
}

func TestSyncerPull(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		wantErr    bool
		wantOutput string
		wantLogged bool
	}{
		{
			name:       "successful pull logs stdout",
			mode:       "up-to-date",
			wantOutput: "Already up to date.\n",
			wantLogged: true,
		},
		{
			name:    "non-zero exit is an error",
			mode:    "not-a-repo",
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv("DEALER_WANT_HELPER_PROCESS", "1")
			t.Setenv("DEALER_HELPER_MODE", testCase.mode)

			var logs bytes.Buffer
			syncer, err := New(
				WithCommand(os.Args[0]),
				WithDir(t.TempDir()),
				WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
			)
			if err != nil {
				t.Fatalf("new syncer failed: %v", err)
			}

			output, err := syncer.Pull(context.Background())
			if testCase.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, testCase.wantErr)
			}
			if !testCase.wantErr && output != testCase.wantOutput {
				t.Fatalf("output = %q, want %q", output, testCase.wantOutput)
			}
			if got := strings.Contains(logs.String(), "git sync output"); got != testCase.wantLogged {
				t.Fatalf("sync output logged = %v, want %v; logs:\n%s", got, testCase.wantLogged, logs.String())
			}
		})
	}
}

func TestSyncerPullMissingBinary(t *testing.T) {
	t.Parallel()

	syncer, err := New(WithCommand("dealerbot-no-such-git"))
	if err != nil {
		t.Fatalf("new syncer failed: %v", err)
	}
	if _, err := syncer.Pull(context.Background()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestNewDefaultsToGitPull(t *testing.T) {
	t.Parallel()

	syncer, err := New()
	if err != nil {
		t.Fatalf("new syncer failed: %v", err)
	}
	if got := strings.Join(syncer.runner.Command(), " "); got != "git pull" {
		t.Fatalf("command = %q, want git pull", got)
	}
}

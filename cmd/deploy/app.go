package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dealerbot/internal/commandfs"
	"dealerbot/internal/credentials"
	"dealerbot/internal/deploy"
	"dealerbot/internal/driver/discord"
	"dealerbot/internal/moduleset"
	"dealerbot/pkg/dealer"

	"github.com/spf13/cobra"
)

type deployOptions struct {
	commandsDir string
	extension   string
	envFile     string
	dryRun      bool
}

type registrarFactory func(creds credentials.Credentials) (deploy.Registrar, error)

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return execute(ctx, logger, os.Stdout, newSessionRegistrar, args)
}

// execute runs the root command and is the single place a failed deploy is
// logged.
func execute(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	newRegistrar registrarFactory,
	args []string,
) error {
	command := newRootCommand(logger, stdout, newRegistrar)
	command.SetArgs(args)
	if err := command.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "deploy failed", "error", err)
		return err
	}

	return nil
}

func newRootCommand(logger *slog.Logger, stdout io.Writer, newRegistrar registrarFactory) *cobra.Command {
	options := deployOptions{}
	command := &cobra.Command{
		Use:   "deploy",
		Short: "Register the guild's slash commands",
		Long: `deploy discovers command descriptors under <commands-dir>/<category>/
and replaces the guild's application commands with them in one request.
Requires DISCORD_TOKEN, CLIENT_ID and GUILD_ID, read from the environment
or the env file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deployCommands(cmd.Context(), logger, stdout, options, newRegistrar)
		},
	}

	flags := command.Flags()
	flags.StringVar(&options.commandsDir, "commands-dir", commandfs.DefaultRoot, "directory holding <category>/<file> descriptors")
	flags.StringVar(&options.extension, "ext", commandfs.DefaultExtension, "descriptor file extension (.yaml, .yml, .toml or .json)")
	flags.StringVar(&options.envFile, "env-file", credentials.DefaultEnvFile, "env file merged into the environment when present")
	flags.BoolVar(&options.dryRun, "dry-run", false, "print the payload instead of submitting it")

	return command
}

func deployCommands(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	options deployOptions,
	newRegistrar registrarFactory,
) error {
	loader := commandfs.NewLoader(
		options.commandsDir,
		commandfs.WithExtension(options.extension),
		commandfs.WithLogger(logger),
		commandfs.WithBinding(bindRuntimeModule),
	)

	runOptions := []deploy.Option{deploy.WithLogger(logger)}
	var registrar deploy.Registrar
	if options.dryRun {
		runOptions = append(runOptions, deploy.WithDryRun(stdout))
	} else {
		creds, err := credentials.Load(options.envFile)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		if err := creds.RequireDeploy(); err != nil {
			return err
		}
		registrar, err = newRegistrar(creds)
		if err != nil {
			return fmt.Errorf("new registrar: %w", err)
		}
	}

	deployer, err := deploy.New(loader, registrar, runOptions...)
	if err != nil {
		return fmt.Errorf("new deployer: %w", err)
	}
	if _, err := deployer.Run(ctx); err != nil {
		return err
	}

	return nil
}

// bindRuntimeModule accepts an execute target only when that module declares
// the command it is paired with.
func bindRuntimeModule(execute string, command dealer.CommandSpec) error {
	if _, ok := moduleset.Lookup(execute, command.Name); !ok {
		return fmt.Errorf("module %s does not declare /%s", execute, command.Name)
	}

	return nil
}

func newSessionRegistrar(creds credentials.Credentials) (deploy.Registrar, error) {
	return discord.NewSessionRegistrar(creds.Token, creds.ClientID, creds.GuildID)
}

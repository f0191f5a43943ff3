package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"mailcss/internal/config"
	"mailcss/internal/state"
)

const version = "0.3.0"

func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := state.EnvFromContext(ctx)

	var err error
	if env.Cfg, err = config.Load(); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.Cfg.LogLevel = "debug"
	}
	if env.Log, err = env.Cfg.Logger(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version), zap.String("runtime", runtime.Version()))
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	return env.Close()
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	// nop logger: leave reporting to main
	if env.Log != nil && env.Log.Core().Enabled(zap.ErrorLevel) {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            "mailcss",
		Usage:           "inlines CSS into HTML documents and email bodies",
		Version:         version + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log at debug level regardless of LOG_LEVEL"},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Inlines CSS into an HTML file",
				Flags:     converterFlags(),
				Action:    convertHTML,
				ArgsUsage: "SOURCE [DESTINATION]",
			},
			{
				Name:      "convert-eml",
				Usage:     "Inlines CSS into the HTML body of a raw message (.eml)",
				Flags:     converterFlags(),
				Action:    convertEML,
				ArgsUsage: "SOURCE [DESTINATION]",
			},
			{
				Name:  "send",
				Usage: "Builds a message, inlines its CSS and sends it over SMTP",
				Flags: append(converterFlags(),
					&cli.StringFlag{Name: "from", Required: true, Usage: "sender `ADDRESS`"},
					&cli.StringSliceFlag{Name: "to", Required: true, Usage: "recipient `ADDRESS` (repeatable)"},
					&cli.StringFlag{Name: "subject", Usage: "message subject"},
					&cli.StringFlag{Name: "text", Usage: "plain text alternative"},
				),
				Action:    send,
				ArgsUsage: "HTML_FILE",
			},
			{
				Name:   "drafts:inline",
				Usage:  "Converts new drafts in DRAFTS_MAILBOX once",
				Action: draftsOnce,
			},
			{
				Name:   "drafts:listen",
				Usage:  "Polls DRAFTS_MAILBOX every DRAFTS_INTERVAL_SEC and converts new drafts",
				Action: draftsListen,
			},
		},
	}

	var err error
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

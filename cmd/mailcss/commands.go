package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"mailcss/internal/inliner"
	"mailcss/internal/listener"
	"mailcss/internal/mail"
	"mailcss/internal/mailer"
	"mailcss/internal/state"
)

func converterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "css", Usage: "CSS `FILE`, URL or raw CSS text added after INLINER_CSS (repeatable)"},
		&cli.BoolFlag{Name: "extract", Usage: "also use <style> and <link rel=stylesheet> CSS found in the HTML"},
		&cli.BoolFlag{Name: "remove", Usage: "remove extracted <style> and <link> elements"},
	}
}

func converter(env *state.LocalEnv, cmd *cli.Command) (*inliner.Converter, error) {
	conv, err := env.Converter()
	if err != nil {
		return nil, err
	}
	for _, s := range cmd.StringSlice("css") {
		conv.AddCSS(s)
	}
	if cmd.Bool("extract") {
		conv.EnableHTMLCSSExtraction()
	}
	if cmd.Bool("remove") {
		conv.EnableHTMLCSSRemoval()
	}
	return conv, nil
}

// readSource reads the first argument, or stdin when it is absent or "-".
func readSource(cmd *cli.Command) ([]byte, error) {
	src := cmd.Args().Get(0)
	if src == "" || src == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("unable to read source '%s': %w", src, err)
	}
	return data, nil
}

// writeDestination writes to the second argument, or stdout when it is absent.
func writeDestination(cmd *cli.Command, data []byte) error {
	dst := cmd.Args().Get(1)
	if dst == "" || dst == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("unable to write destination '%s': %w", dst, err)
	}
	return nil
}

func convertHTML(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	data, err := readSource(cmd)
	if err != nil {
		return err
	}
	conv, err := converter(env, cmd)
	if err != nil {
		return err
	}

	out, err := conv.ConvertHTML(string(data))
	if err != nil {
		return err
	}
	log.Debug("Converted HTML", zap.Int("in", len(data)), zap.Int("out", len(out)))
	return writeDestination(cmd, []byte(out))
}

func convertEML(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	data, err := readSource(cmd)
	if err != nil {
		return err
	}
	msg, err := mail.Read(data)
	if err != nil {
		return err
	}
	conv, err := converter(env, cmd)
	if err != nil {
		return err
	}

	if msg, err = conv.ConvertEmailBody(msg); err != nil {
		return err
	}
	out, err := msg.Bytes()
	if err != nil {
		return err
	}
	return writeDestination(cmd, out)
}

func send(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() == 0 {
		return errors.New("no HTML file has been specified")
	}
	body, err := readSource(cmd)
	if err != nil {
		return err
	}

	from, err := netmail.ParseAddress(cmd.String("from"))
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	msg := &mail.Message{From: *from, Subject: cmd.String("subject"), Text: cmd.String("text")}
	for _, to := range cmd.StringSlice("to") {
		addr, err := netmail.ParseAddress(to)
		if err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
		msg.To = append(msg.To, *addr)
	}
	msg.SetHTML(string(body))

	m, err := mailer.NewSMTP(env.Cfg, env.Log)
	if err != nil {
		return err
	}
	conv, err := converter(env, cmd)
	if err != nil {
		return err
	}
	conv.AttachTo(m)

	return m.Send(ctx, msg)
}

func draftsService(env *state.LocalEnv) (*listener.Service, error) {
	store, err := listener.NewStore(env.Cfg)
	if err != nil {
		return nil, err
	}
	db, err := env.DB()
	if err != nil {
		return nil, err
	}
	conv, err := env.Converter()
	if err != nil {
		return nil, err
	}
	return listener.NewService(db, env.Cfg, conv, store, env.Log), nil
}

func draftsOnce(ctx context.Context, _ *cli.Command) error {
	svc, err := draftsService(state.EnvFromContext(ctx))
	if err != nil {
		return err
	}
	_, err = svc.RunOnce(ctx)
	return err
}

func draftsListen(ctx context.Context, _ *cli.Command) error {
	svc, err := draftsService(state.EnvFromContext(ctx))
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

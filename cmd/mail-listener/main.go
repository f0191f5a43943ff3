package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mailcss/internal/config"
	"mailcss/internal/listener"
	"mailcss/internal/state"
)

func main() {
	ctx, cancel := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env := state.EnvFromContext(ctx)

	var err error
	env.Cfg, err = config.Load()
	must(err)
	env.Log, err = env.Cfg.Logger()
	must(err)
	defer env.Close()

	store, err := listener.NewStore(env.Cfg)
	must(err)
	db, err := env.DB()
	must(err)
	conv, err := env.Converter()
	must(err)

	svc := listener.NewService(db, env.Cfg, conv, store, env.Log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

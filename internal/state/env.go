// Package state defines shared program state.
package state

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mailcss/internal/config"
	"mailcss/internal/storage"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg config.Config
	Log *zap.Logger

	db    *storage.DB
	start time.Time
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &LocalEnv{Log: zap.NewNop(), start: time.Now()})
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// DB opens the database on first use.
func (e *LocalEnv) DB() (*storage.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	db, err := storage.Open(e.Cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open database '%s': %w", e.Cfg.DBPath, err)
	}
	e.db = db
	return db, nil
}

// Close releases the database and flushes the log.
func (e *LocalEnv) Close() (err error) {
	if e.db != nil {
		if er := e.db.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close database: %w", er))
		}
		e.db = nil
	}
	if e.Log != nil {
		// stdout and stderr cannot always be synced, ignore
		_ = e.Log.Sync()
	}
	return err
}

package main

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

// newLogger builds the process-wide structured logger: a zap.Logger
// configured for production (JSON) or development (console, pretty) output
// per cfg.PrettyLogs, wrapped as ectologger.Logger via the one constructor
// observed in the reference repository's own test suite
// (ectologger.NewEctoLogger(func(EctoLogMessage) {...})). EctoLogMessage's
// fields are never dereferenced anywhere in the reference repository
// either, so the callback formats the whole message through zap rather
// than guessing at field names no example actually reads.
func newLogger(level string, pretty bool) (ectologger.Logger, *zap.Logger, error) {
	var cfg zap.Config
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		zapLogger.Info(fmt.Sprintf("%+v", msg))
	})
	return logger, zapLogger, nil
}

package observability

import (
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logger and returns a child tagged with
// app. The zerolog global logger is pointed at the same child.
func InitLogger(app string) zerolog.Logger {
	logs.ConfigureRuntime()
	logger := logs.Logger().With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

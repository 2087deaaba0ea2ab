package logger

import (
	"parish-media/internal/config"
	"parish-media/internal/database"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the console logger and, when enabled, tees warn+ entries into Mongo.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Caller must be enabled for the function name to reach the DB writer
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	core := baseLogger.Core()
	if cfg.LogToDB && mongodb != nil && mongodb.DB != nil {
		dbWriter := NewDBLogWriter(mongodb, cfg)
		core = NewDBCore(core, dbWriter, zapcore.WarnLevel)
	}

	logger := zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(logger)
	return logger, nil
}

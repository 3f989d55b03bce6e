package mssql

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sqlpage/mssqltds/msdsn"
)

// msdsnLogToZapLevel maps connection log categories to zap levels.
var msdsnLogToZapLevel = map[msdsn.Log]zapcore.Level{
	msdsn.LogDebug:    zapcore.DebugLevel,
	msdsn.LogMessages: zapcore.InfoLevel,
	msdsn.LogErrors:   zapcore.ErrorLevel,
}

// zapContextLogger implements ContextLogger by wrapping a zap.Logger.
type zapContextLogger struct {
	logger *zap.Logger
}

// ZapLoggerToContextLogger wraps a zap.Logger object as a ContextLogger
// interface implementation.
func ZapLoggerToContextLogger(logger *zap.Logger) ContextLogger {
	return &zapContextLogger{logger: logger}
}

// Log emits the message at the zap level closest to the category.
func (l *zapContextLogger) Log(_ context.Context, category msdsn.Log, msg string) {
	zapLevel, ok := msdsnLogToZapLevel[category]
	if !ok {
		zapLevel = zapcore.InfoLevel
	}
	l.logger.Log(zapLevel, msg)
}

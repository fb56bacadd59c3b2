package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// RuntimeEnvVar selects production-style JSON logging when set to "prod".
	RuntimeEnvVar = "REDISX_RUNTIME"
)

func RawZapLogger() *zap.Logger {
	logConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:       true,
		DisableCaller:     false,
		DisableStacktrace: false,
		Encoding:          "console",
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	if IsProdRuntime() {
		logConfig.Development = false
		logConfig.Encoding = "json"
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig.EncoderConfig = encoderCfg

	zapLogger, initErr := logConfig.Build()
	if initErr != nil {
		panic(fmt.Sprintf("redisX: failed to initialize logger: %v", initErr))
	}
	return zapLogger
}

// InitLogger returns a logr.Logger backed by zap, named by callers with
// WithName per component (e.g. InitLogger().WithName("session")).
func InitLogger() logr.Logger {
	return zapr.NewLogger(RawZapLogger())
}

func IsProdRuntime() bool {
	val, ok := os.LookupEnv(RuntimeEnvVar)
	if !ok {
		return false
	}
	return strings.EqualFold(val, "prod")
}

package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"static-ad-server/modules/common/config"
)

// New - zap 로거 생성 (production이면 JSON, 아니면 development 콘솔)
func New(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil || !cfg.IsProduction() {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return withBaseFields(log, cfg), nil
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.StacktraceKey = "stacktrace"
	zcfg.EncoderConfig.LevelKey = "severity"
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.Encoding = "json"
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	log, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return withBaseFields(log, cfg), nil
}

func withBaseFields(log *zap.Logger, cfg *config.Config) *zap.Logger {
	if cfg == nil {
		return log
	}
	return log.With(
		zap.String("env", cfg.AppEnv),
		zap.String("service_name", cfg.AppName),
	)
}

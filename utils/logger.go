package utils

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// level は実行中に変更可能なログレベルです
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// sugar はパッケージ全体で共有するロガーです
	sugar *zap.SugaredLogger
)

// init関数はパッケージがインポートされたときに自動的に実行されます
func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	sugar = logger.Sugar()
}

// SetLogger はロガーを差し替えます（テスト用）
func SetLogger(logger *zap.Logger) {
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// SetLogLevel は文字列でログレベルを設定します
func SetLogLevel(name string) {
	level.SetLevel(parseLevel(name))
}

func parseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SyncLogger はバッファされたログを書き出します
func SyncLogger() {
	_ = sugar.Sync()
}

// LogDebug はデバッグレベルのメッセージをログに記録します
func LogDebug(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// LogInfo は情報レベルのメッセージをログに記録します
func LogInfo(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// LogWarn は警告レベルのメッセージをログに記録します
func LogWarn(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// LogError はエラーレベルのメッセージをログに記録します
func LogError(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	LogInfo("%s 完了時間: %s", name, elapsed)
}

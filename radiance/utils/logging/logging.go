package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	AppLogger     *zap.Logger
	RequestLogger *zap.Logger
	TimerLogger   *zap.Logger
	ErrorLogger   *zap.Logger
)

type contextKey string

// TraceIDKey carries a request trace id through the context so duration logs
// can be correlated across layers.
const TraceIDKey contextKey = "trace_id"

// ensureLogsDir makes sure the ./logs folder exists
func ensureLogsDir() {
	if err := os.MkdirAll("./logs", os.ModePerm); err != nil {
		panic("Failed to create logs directory: " + err.Error())
	}
}

func InitLogger() {
	ensureLogsDir()
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	newFileCore := func(filename string, maxSize, maxAge int, level zapcore.Level) zapcore.Core {
		return zapcore.NewCore(encoder,
			zapcore.AddSync(&lumberjack.Logger{
				Filename: filename, MaxSize: maxSize, MaxAge: maxAge, Compress: true,
			}),
			level,
		)
	}

	// app.log (general logs)
	AppLogger = zap.New(newFileCore("./logs/app.log", 100, 28, zap.InfoLevel))

	// request.log
	RequestLogger = zap.New(newFileCore("./logs/request.log", 50, 7, zap.InfoLevel))

	// timer.log
	TimerLogger = zap.New(newFileCore("./logs/timer.log", 50, 7, zap.InfoLevel))

	// error.log
	ErrorLogger = zap.New(newFileCore("./logs/error.log", 100, 30, zap.ErrorLevel))
}

// LogDuration lets you do: defer logging.LogDuration(ctx, "FuncName")()
func LogDuration(ctx context.Context, name string) func() {
	start := time.Now()

	traceID, _ := ctx.Value(TraceIDKey).(string)

	return func() {
		duration := time.Since(start).Milliseconds()
		fields := []zap.Field{
			zap.String("func", name),
			zap.Int64("duration_ms", duration),
		}
		if traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		// write ONLY to timer.log
		TimerLogger.Info("Function timed", fields...)
	}
}

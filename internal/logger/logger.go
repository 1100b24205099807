package logger

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomasen/realip"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func FromContext(ctx context.Context) (*zap.Logger, error) {
	logger, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok {
		return nil, errors.New("unable to get logger from context")
	}
	return logger, nil
}

func Middleware(baseLogger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := baseLogger.With(
				zap.String("request_ip", realip.FromRequest(r)),
				zap.String("method", r.Method),
				zap.String("endpoint", r.URL.Path),
			)
			if ua := r.UserAgent(); ua != "" {
				logger = logger.With(zap.String("user_agent", ua))
			}
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// New returns the production logger used by the broker. It falls back to a
// no-op logger if stderr cannot be opened.
func New() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.MessageKey = "message"
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.Named("broker")
}

// ToFile returns a debug level logger that writes to the file at path. Used by
// endpoint commands, whose stdout belongs to the tui.
func ToFile(path string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

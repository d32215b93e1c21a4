package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"

	"github.com/sirupsen/logrus"
)

const (
	HttpXRequestId = "X-Request-Id"
	CtxRequestId   = "requestId"
)

type ctxKey string

const requestIdKey ctxKey = CtxRequestId

// InitLog configures the standard logrus logger for the whole process.
func InitLog(logLevel string) {
	InitLogTo(logLevel, os.Stdout)
}

func InitLogTo(logLevel string, out io.Writer) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Errorf("failed to parse log level: %v, err: %v", logLevel, err)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetReportCaller(true)
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		DisableColors:   true,
		DisableQuote:    true,
		CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", path.Base(frame.File), frame.Line)
		},
	})
}

// WithRequestId returns a child context carrying the request id picked up by GetLogger.
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKey, requestId)
}

func RequestId(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIdKey).(string); ok {
		return v
	}
	// gin.Context stores keys by plain string
	if v, ok := ctx.Value(CtxRequestId).(string); ok {
		return v
	}
	return ""
}

func GetLogger(ctx context.Context) *logrus.Entry {
	if id := RequestId(ctx); id != "" {
		return logrus.WithField(CtxRequestId, id)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

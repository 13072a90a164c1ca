package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LogHTTPRequest writes one structured entry for a completed HTTP request
func LogHTTPRequest(method, path string, status int, duration time.Duration, size int, remoteAddr, userAgent string, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Int("size", size),
		zap.String("remote_addr", remoteAddr),
		zap.String("user_agent", userAgent),
	}

	msg := fmt.Sprintf("%s %s %d %v %d bytes", method, path, status, duration, size)

	if err != nil {
		GetZapLogger().Error(msg, append(fields, zap.Error(err))...)
		return
	}
	GetZapLogger().Debug(msg, fields...)
}

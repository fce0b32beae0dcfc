package cachestore

import "log/slog"

func slogError(msg string, args ...interface{}) {
	slog.Error("[XcodeCache/E] "+msg, args...)
}

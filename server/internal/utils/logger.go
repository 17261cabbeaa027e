package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

// levelFatal sits above slog's error level so SetLogLevel("FATAL") silences errors.
const levelFatal = slog.LevelError + 4

var (
	level  = new(slog.LevelVar) // defaults to INFO
	logger = newLogger(os.Stdout, false)
)

func newLogger(w io.Writer, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    noColor,
	}))
}

func toSlogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel sets the global log level for the application.
func SetLogLevel(levelString string) {
	switch strings.ToUpper(levelString) {
	case "DEBUG":
		level.Set(toSlogLevel(LevelDebug))
	case "INFO":
		level.Set(toSlogLevel(LevelInfo))
	case "WARNING", "WARN":
		level.Set(toSlogLevel(LevelWarning))
	case "ERROR":
		level.Set(toSlogLevel(LevelError))
	case "FATAL":
		level.Set(toSlogLevel(LevelFatal))
	default:
		level.Set(slog.LevelInfo)
		LogWarnf("Unknown log level '%s', defaulting to INFO", levelString)
	}
	LogInfof("Log level set to %s", level.Level())
}

// SetOutput redirects log output, without colors, to w.
func SetOutput(w io.Writer) {
	logger = newLogger(w, true)
}

// Logger returns the structured logger behind the Log* helpers, for
// libraries that accept a *slog.Logger (the actor system).
func Logger() *slog.Logger {
	return logger
}

func logInternal(l slog.Level, message string) {
	if !logger.Enabled(context.Background(), l) {
		return
	}
	logger.Log(context.Background(), l, message)
}

func LogDebug(args ...interface{}) {
	logInternal(slog.LevelDebug, fmt.Sprint(args...))
}

func LogDebugf(format string, args ...interface{}) {
	logInternal(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func LogInfo(args ...interface{}) {
	logInternal(slog.LevelInfo, fmt.Sprint(args...))
}

func LogInfof(format string, args ...interface{}) {
	logInternal(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func LogWarn(args ...interface{}) {
	logInternal(slog.LevelWarn, fmt.Sprint(args...))
}

func LogWarnf(format string, args ...interface{}) {
	logInternal(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func LogError(args ...interface{}) {
	logInternal(slog.LevelError, fmt.Sprint(args...))
}

func LogErrorf(format string, args ...interface{}) {
	logInternal(slog.LevelError, fmt.Sprintf(format, args...))
}

func LogFatal(args ...interface{}) {
	logInternal(levelFatal, fmt.Sprint(args...))
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	logInternal(levelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Elapsed logs how long an operation took at debug level. Use with defer:
//
//	defer utils.Elapsed("tick", time.Now())
func Elapsed(what string, start time.Time) {
	LogDebugf("%s took %s", what, time.Since(start))
}

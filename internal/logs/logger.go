package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger  *zap.SugaredLogger
	logFile *os.File
	verbose bool
)

// SetVerbose enables mirroring of log output to the terminal. Must be called
// before Init to take effect.
func SetVerbose(v bool) {
	verbose = v
}

// Init sets up the logger. Logs always go to a file under the XDG config
// directory; when verbose mode is enabled they are mirrored to stderr.
func Init() error {
	level := zapcore.InfoLevel
	if lvl := os.Getenv("RUNG_LOG_LEVEL"); lvl != "" {
		if err := level.Set(strings.ToLower(lvl)); err != nil {
			level = zapcore.InfoLevel
		}
	}
	if verbose && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEnc := zapcore.NewJSONEncoder(encCfg)

	var cores []zapcore.Core

	logDir, err := logDirPath()
	if err == nil {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			logFile, err = os.OpenFile(filepath.Join(logDir, "rung.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(logFile), level))
			}
		}
	}

	if verbose {
		conCfg := zap.NewDevelopmentEncoderConfig()
		conCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(conCfg), zapcore.AddSync(os.Stderr), level))
	}

	if len(cores) == 0 {
		logger = zap.NewNop().Sugar()
		return fmt.Errorf("failed to open log file")
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCallerSkip(1)).Sugar()
	Debug("Logger initialized. Level=%s, Verbose=%v", level, verbose)
	return nil
}

func logDirPath() (string, error) {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "rung", "logs"), nil
}

func get() *zap.SugaredLogger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return logger
}

func Debug(format string, v ...interface{}) { get().Debugf(format, v...) }
func Info(format string, v ...interface{})  { get().Infof(format, v...) }
func Warn(format string, v ...interface{})  { get().Warnf(format, v...) }
func Error(format string, v ...interface{}) { get().Errorf(format, v...) }

// Close flushes and closes the log file.
func Close() {
	if logger != nil {
		_ = logger.Sync()
	}
	if logFile != nil {
		_ = logFile.Close()
	}
}

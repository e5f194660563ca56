package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"blogCPT/internal/config"
)

// New builds the application logger from config. Unknown levels fall back to info.
func New(cfg config.Logger) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

package helpers

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus logger for the given environment.
// Development gets text output at debug; everything else JSON at info.
// A non-empty level overrides the environment default.
func NewLogger(appName, env, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if env == "development" {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if s := strings.TrimSpace(level); s != "" {
		if lvl, err := logrus.ParseLevel(s); err == nil {
			logger.SetLevel(lvl)
		} else {
			logger.WithField("level", s).Warn("unknown LOG_LEVEL, keeping default")
		}
	}
	logger.AddHook(appHook{fields: logrus.Fields{"app": appName, "env": env}})
	logger.Debug("logger initialized")
	return logger
}

// appHook stamps every entry with the process identity.
type appHook struct {
	fields logrus.Fields
}

func (appHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h appHook) Fire(e *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

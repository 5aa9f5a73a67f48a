package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the logger used across the application. Level is
// controlled by the PAIRCHAT_LOG environment variable so the chat REPL
// stays quiet by default.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	switch os.Getenv("PAIRCHAT_LOG") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

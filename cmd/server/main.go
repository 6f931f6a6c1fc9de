// Package main — точка входа сервера трекера привычек.
// Команды: serve (по умолчанию), migrate, hash-password.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	setupLogging()

	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("Команда завершилась с ошибкой")
		os.Exit(1)
	}
}

// setupLogging настраивает формат логов по умолчанию.
// Уровень и формат уточняются после загрузки конфигурации.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

// applyLogConfig переключает логгер на настройки из окружения.
func applyLogConfig(env, level string) {
	if env == "production" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", level).Warn("Неизвестный APP_LOG_LEVEL, оставляю debug")
	}
}

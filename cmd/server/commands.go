package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/habit-tracker/internal/app"
	"serotonyl.ru/habit-tracker/internal/config"
	"serotonyl.ru/habit-tracker/internal/db/postgres"
	"serotonyl.ru/habit-tracker/internal/features/users"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "habit-tracker",
		Short:         "Сервер трекера привычек с игровым прогрессом",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Запустить HTTP-сервер, планировщик и Telegram-бота",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Применить миграции PostgreSQL и выйти",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "hash-password <пароль>",
			Short: "Вывести Argon2id-хеш пароля",
			Args:  cobra.ExactArgs(1),
			RunE:  runHashPassword,
		},
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyLogConfig(cfg.AppEnv, cfg.AppLogLevel)
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	log.Info("=== Сервер запускается ===")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Контекст отменяется по Ctrl+C или docker stop
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать приложение: %w", err)
	}
	defer application.Close()

	log.Info("=== Сервер готов к работе ===")
	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("=== Сервер остановлен ===")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageDriver != config.StoragePostgres {
		return fmt.Errorf("миграции нужны только для STORAGE_DRIVER=postgres")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.RunMigrations(ctx, pool)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	hash, err := users.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

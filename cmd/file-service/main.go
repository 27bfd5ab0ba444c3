// Точка входа File Service — загрузка файлов досок и очистка по сроку хранения.
// Команды:
//   - serve — HTTP API, фоновая очистка, topologymetrics (по умолчанию)
//   - sweep — один проход очистки, сводка в JSON на stdout
//   - version — версия сборки
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/propimentel/flr-wb/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCommand собирает дерево команд. Без подкоманды выполняется serve.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "file-service",
		Short:         "Загрузка файлов досок и очистка устаревших данных",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Запустить HTTP API и фоновую очистку",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Выполнить один проход очистки и вывести сводку",
			RunE:  runSweep,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Показать версию",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			},
		},
	)
	return root
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		return nil, nil, err
	}
	return cfg, config.SetupLogger(cfg), nil
}

// runSweep выполняет одну очистку. Частичная очистка завершается кодом 0,
// прерванная (не удалось прочитать коллекции) — ошибкой.
func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	summary, err := a.sweeper.RunOnce(cmd.Context())
	if summary != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	}
	if err != nil {
		logger.Error("Очистка прервана", slog.String("error", err.Error()))
		return err
	}
	return nil
}

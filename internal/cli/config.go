package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/heic2jpg/internal/config"
)

// newConfigCmd создаёт команду для работы с YAML конфигурацией.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом конфигурации",
		Long: `Работа с YAML файлом конфигурации.

Файл читается только при явном указании --config.

Примеры:
  # Создать пример конфигурации
  heic2jpg config example > heic2jpg.yaml

  # Проверить файл и показать итоговые настройки
  heic2jpg config show heic2jpg.yaml`,
	}

	cmd.AddCommand(newConfigExampleCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// newConfigExampleCmd создаёт команду для вывода примера конфигурации.
func newConfigExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Вывести пример файла конфигурации",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateExampleConfig())
		},
	}
}

// newConfigShowCmd создаёт команду для проверки файла конфигурации.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Проверить файл и показать итоговые настройки",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := config.LoadFromFile(args[0])
			if err != nil {
				return err
			}

			cfg := config.DefaultConfig()
			fc.ApplyToConfig(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("ошибка конфигурации: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📋 Конфигурация %s:\n\n", args[0])
			fmt.Fprintf(out, "  Директория:  %s\n", cfg.InputDir)
			fmt.Fprintf(out, "  Качество:    %d\n", config.Quality)
			fmt.Fprintf(out, "  Dry-run:     %t\n", cfg.DryRun)
			fmt.Fprintf(out, "  Наблюдение:  %t\n", cfg.Watch)
			fmt.Fprintf(out, "  Прогресс:    %t\n", cfg.Progress)
			fmt.Fprintf(out, "  Подробно:    %t\n", cfg.Verbose)
			fmt.Fprintf(out, "  Журнал:      %s\n", orDash(cfg.DBPath))
			fmt.Fprintf(out, "  vips:        %s\n", orDash(cfg.VipsPath))
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

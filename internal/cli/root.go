// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/heic2jpg/internal/config"
	"github.com/artemshloyda/heic2jpg/internal/converter"
	"github.com/artemshloyda/heic2jpg/internal/progress"
	"github.com/artemshloyda/heic2jpg/internal/runlock"
	"github.com/artemshloyda/heic2jpg/internal/runner"
	"github.com/artemshloyda/heic2jpg/internal/scanner"
	"github.com/artemshloyda/heic2jpg/internal/storage"
	"github.com/artemshloyda/heic2jpg/internal/vipsfinder"
	"github.com/artemshloyda/heic2jpg/internal/watcher"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// ErrMissingDependency - не найден декодер HEIF.
var ErrMissingDependency = errors.New("отсутствует зависимость")

// options - значения флагов корневой команды.
type options struct {
	configPath string
	flags      config.Config
}

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	opts := &options{flags: *config.DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:   "heic2jpg [dir]",
		Short: "Конвертация HEIC/HEIF изображений в JPEG",
		Long: `heic2jpg - конвертирует все HEIC/HEIF файлы в дереве директорий в JPEG.

JPEG создаётся рядом с исходником с тем же именем и расширением .jpg.
Если JPEG уже существует, файл пропускается: повторный запуск ничего не перезаписывает.
Прозрачные области заливаются белым. Качество JPEG фиксировано: 90.

Для декодирования нужен vips с поддержкой HEIF (libheif).

Примеры:
  # Конвертировать public/images
  heic2jpg

  # Другая директория
  heic2jpg ./photos

  # Посмотреть, что будет сконвертировано
  heic2jpg --dry-run

  # Вести журнал и затем посмотреть статистику
  heic2jpg --db ./.heic2jpg/journal.sqlite
  heic2jpg stats --db ./.heic2jpg/journal.sqlite`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			_, err = runConvert(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	opts.bindFlags(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// bindFlags регистрирует флаги конвертации на cmd.
func (o *options) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.flags.InputDir, "in", o.flags.InputDir, "Корневая директория с HEIC/HEIF файлами")
	flags.StringVar(&o.flags.VipsPath, "vips-path", "", "Путь к бинарнику vips")
	flags.StringVar(&o.flags.DBPath, "db", "", "Путь к SQLite журналу запусков (по умолчанию журнал выключен)")
	flags.BoolVar(&o.flags.DryRun, "dry-run", false, "Симуляция без записи файлов")
	flags.BoolVar(&o.flags.Watch, "watch", false, "После обработки следить за директорией")
	flags.BoolVar(&o.flags.Progress, "progress", false, "Показывать прогресс-бар (только в терминале)")
	flags.BoolVarP(&o.flags.Verbose, "verbose", "v", false, "Подробный вывод")
	flags.StringVar(&o.configPath, "config", "", "YAML файл конфигурации")
}

// resolve собирает конфигурацию: значения по умолчанию, затем файл,
// затем явно заданные флаги и позиционный аргумент.
func (o *options) resolve(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if o.configPath != "" {
		fc, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return nil, err
		}
		fc.ApplyToConfig(cfg)
	}

	changed := cmd.Flags().Changed
	if changed("in") {
		cfg.InputDir = o.flags.InputDir
	}
	if changed("vips-path") {
		cfg.VipsPath = o.flags.VipsPath
	}
	if changed("db") {
		cfg.DBPath = o.flags.DBPath
	}
	if changed("dry-run") {
		cfg.DryRun = o.flags.DryRun
	}
	if changed("watch") {
		cfg.Watch = o.flags.Watch
	}
	if changed("progress") {
		cfg.Progress = o.flags.Progress
	}
	if changed("verbose") {
		cfg.Verbose = o.flags.Verbose
	}

	if len(args) == 1 {
		if changed("in") && args[0] != o.flags.InputDir {
			return nil, fmt.Errorf("директория указана дважды: --in %s и %s", o.flags.InputDir, args[0])
		}
		cfg.InputDir = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	return cfg, nil
}

// runConvert выполняет основную логику конвертации. Ошибки отдельных
// файлов не возвращаются: они уже учтены в статистике.
func runConvert(parent context.Context, cfg *config.Config, out, errOut io.Writer) (runner.Stats, error) {
	if parent == nil {
		parent = context.Background()
	}
	log := newLogger(errOut, cfg.Verbose)

	// Декодер проверяется до любой работы с файлами.
	finder := vipsfinder.NewFinder(cfg.VipsPath)
	vipsInfo, err := finder.Find()
	if err != nil {
		return runner.Stats{}, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	if err := vipsInfo.CheckHEIF(); err != nil {
		return runner.Stats{}, fmt.Errorf("%w: %s: %w", ErrMissingDependency, vipsInfo.Path, err)
	}
	log.Debug("vips", slog.String("path", vipsInfo.Path), slog.String("version", vipsInfo.Version))

	if err := runner.CheckRoot(cfg.InputDir); err != nil {
		return runner.Stats{}, err
	}
	if err := cfg.ResolveRoot(); err != nil {
		return runner.Stats{}, err
	}

	lock, err := runlock.Acquire(cfg.InputDir)
	if err != nil {
		return runner.Stats{}, err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := converter.New(converter.NewVipsCodec(vipsInfo.Path), cfg, log)
	run := runner.New(cfg, conv, out, log)

	if cfg.DBPath != "" {
		store, err := storage.New(cfg.DBPath)
		if err != nil {
			return runner.Stats{}, fmt.Errorf("не удалось открыть журнал: %w", err)
		}
		defer func() { _ = store.Close() }()

		if n, err := store.CleanupUnfinished(cfg.InputDir); err != nil {
			log.Warn("не удалось закрыть прерванные запуски", slog.Any("error", err))
		} else if n > 0 {
			log.Info("закрыты прерванные запуски", slog.Int64("count", n))
		}
		run.SetJournal(store)
	}

	return execute(ctx, cfg, run, out, errOut, log)
}

// execute - обход, обработка и (опционально) наблюдение.
func execute(ctx context.Context, cfg *config.Config, run *runner.Runner, out, errOut io.Writer, log *slog.Logger) (runner.Stats, error) {
	scan := scanner.New(cfg.InputDir)
	scan.SetWarnWriter(errOut)

	files, err := scan.Scan(ctx)
	if err != nil {
		return runner.Stats{}, err
	}
	log.Debug("discovered", slog.Int("files", len(files)))

	var bar *progress.Bar
	if cfg.Progress {
		bar = progress.New(progress.Options{Total: int64(len(files)), Writer: errOut})
		run.SetProgressBar(bar)
	}

	run.Begin()
	run.Process(ctx, files)

	if cfg.Watch && ctx.Err() == nil {
		if err := watch(ctx, cfg, run, bar, out, log); err != nil {
			log.Warn("режим наблюдения остановлен", slog.Any("error", err))
		}
	}

	return run.Finish(), nil
}

// watch передаёт новые файлы тому же Runner до отмены ctx.
func watch(ctx context.Context, cfg *config.Config, run *runner.Runner, bar *progress.Bar, out io.Writer, log *slog.Logger) error {
	w, err := watcher.New(cfg.InputDir, log)
	if err != nil {
		return err
	}

	files, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	bar.Printf(out, "\n👀 Наблюдение за %s (Ctrl+C для выхода)...\n", cfg.InputDir)
	for f := range files {
		bar.AddTotal(1)
		run.ProcessFile(ctx, f)
	}
	return nil
}

// newLogger создаёт логгер диагностики. Консольный вывод
// конвертации идёт отдельно, через Runner.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "heic2jpg %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Ошибку уже вывела cobra.
		os.Exit(1)
	}
}

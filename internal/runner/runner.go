// Package runner содержит последовательный цикл пакетной конвертации.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/artemshloyda/heic2jpg/internal/config"
	"github.com/artemshloyda/heic2jpg/internal/converter"
	"github.com/artemshloyda/heic2jpg/internal/progress"
	"github.com/artemshloyda/heic2jpg/internal/scanner"
	"github.com/artemshloyda/heic2jpg/internal/storage"
)

// ErrRootMissing - корневая директория не существует.
var ErrRootMissing = errors.New("директория не найдена")

// Stats содержит статистику одного запуска.
type Stats struct {
	// Discovered - сколько файлов передано в обработку.
	Discovered int64

	// Converted - успешно сконвертировано.
	Converted int64

	// Skipped - выходной файл уже существовал.
	Skipped int64

	// Failed - ошибка конвертации.
	Failed int64

	// InputBytes - размер сконвертированных исходников.
	InputBytes int64

	// OutputBytes - размер созданных JPEG.
	OutputBytes int64
}

// Journal сохраняет исходы запуска. Реализуется storage.Storage.
type Journal interface {
	StartRun(root string, dryRun bool) (int64, error)
	Record(runID int64, c storage.Conversion) error
	FinishRun(runID, converted, skipped, failed int64) error
}

// Converter - процедура конвертации одного файла.
type Converter interface {
	Convert(ctx context.Context, srcPath, dstPath string) *converter.ConvertResult
}

// Runner обрабатывает файлы строго по одному.
type Runner struct {
	cfg       *config.Config
	converter Converter
	out       io.Writer
	log       *slog.Logger

	bar     *progress.Bar
	journal Journal
	runID   int64

	stats     Stats
	startTime time.Time
}

// New создаёт новый Runner. Консольный вывод идёт в out.
func New(cfg *config.Config, conv Converter, out io.Writer, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		converter: conv,
		out:       out,
		log:       log,
	}
}

// SetProgressBar устанавливает прогресс-бар (nil = без бара).
func (r *Runner) SetProgressBar(bar *progress.Bar) {
	r.bar = bar
}

// SetJournal включает запись исходов в журнал.
func (r *Runner) SetJournal(j Journal) {
	r.journal = j
}

// CheckRoot проверяет, что корневая директория существует.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRootMissing, root)
		}
		return fmt.Errorf("не удалось открыть %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", root)
	}
	return nil
}

// Begin печатает заголовок и открывает запись запуска в журнале.
func (r *Runner) Begin() {
	r.startTime = time.Now()
	r.stats = Stats{}

	fmt.Fprintln(r.out, "🔄 Конвертация изображений HEIC/HEIF в JPG...")
	if r.cfg.DryRun {
		fmt.Fprintln(r.out, "   ⚠️  Dry-run режим (файлы не записываются)")
	}
	fmt.Fprintln(r.out)

	if r.journal == nil {
		return
	}
	id, err := r.journal.StartRun(r.cfg.InputDir, r.cfg.DryRun)
	if err != nil {
		r.log.Warn("журнал отключён", slog.Any("error", err))
		r.journal = nil
		return
	}
	r.runID = id
}

// Process обрабатывает найденные файлы по порядку.
// Отмена контекста останавливает цикл перед следующим файлом.
func (r *Runner) Process(ctx context.Context, files []scanner.File) {
	for _, f := range files {
		if ctx.Err() != nil {
			r.log.Warn("обработка прервана", slog.Int64("processed", r.stats.Discovered), slog.Int("found", len(files)))
			return
		}
		r.ProcessFile(ctx, f)
	}
}

// ProcessFile обрабатывает один файл и возвращает его исход.
// Ошибки файла не выходят наружу: они печатаются и считаются.
func (r *Runner) ProcessFile(ctx context.Context, f scanner.File) storage.Outcome {
	r.stats.Discovered++
	defer r.bar.Add()

	dstPath := scanner.OutputPath(f.Path)
	name := filepath.Base(f.Path)
	dstName := filepath.Base(dstPath)

	if _, err := os.Stat(dstPath); err == nil {
		r.bar.Printf(r.out, "⏭️  Уже существует: %s\n", dstName)
		r.stats.Skipped++
		r.record(f, dstPath, storage.OutcomeSkipped, nil)
		return storage.OutcomeSkipped
	}

	if r.cfg.DryRun {
		r.bar.Printf(r.out, "🔄 [dry-run] %s -> %s\n", f.RelPath, dstName)
		r.stats.Converted++
		r.record(f, dstPath, storage.OutcomeConverted, nil)
		return storage.OutcomeConverted
	}

	if r.bar == nil {
		fmt.Fprintf(r.out, "🔄 Конвертация: %s... ", name)
	}

	res := r.converter.Convert(ctx, f.Path, dstPath)

	var line string
	outcome := storage.OutcomeConverted
	if res.Success {
		line = fmt.Sprintf("✅ -> %s\n", dstName)
		r.stats.Converted++
		r.stats.InputBytes += f.Size
		if info, err := os.Stat(dstPath); err == nil {
			r.stats.OutputBytes += info.Size()
		}
		r.log.Debug("converted",
			slog.String("src", f.Path),
			slog.String("mode", string(res.Mode)),
			slog.Duration("took", res.Duration),
		)
	} else {
		line = fmt.Sprintf("❌\n   Ошибка: %s\n", res.Message())
		r.stats.Failed++
		outcome = storage.OutcomeFailed
	}

	if r.bar == nil {
		fmt.Fprint(r.out, line)
	} else {
		r.bar.Printf(r.out, "🔄 Конвертация: %s... %s", name, line)
	}

	r.record(f, dstPath, outcome, res)
	return outcome
}

// record пишет исход в журнал, если он включён.
func (r *Runner) record(f scanner.File, dstPath string, outcome storage.Outcome, res *converter.ConvertResult) {
	if r.journal == nil {
		return
	}

	c := storage.Conversion{
		SrcPath: f.Path,
		DstPath: dstPath,
		Outcome: outcome,
	}
	if res != nil {
		c.Duration = res.Duration
		if msg := res.Message(); msg != "" {
			c.Error = &msg
		}
	}

	if err := r.journal.Record(r.runID, c); err != nil {
		r.log.Warn("не удалось записать исход в журнал", slog.String("src", f.Path), slog.Any("error", err))
	}
}

// Finish печатает итоги и закрывает запись запуска.
func (r *Runner) Finish() Stats {
	r.bar.Finish()

	s := r.stats
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "📊 Итоги:")
	fmt.Fprintf(r.out, "   ✅ Сконвертировано: %d\n", s.Converted)
	fmt.Fprintf(r.out, "   ⏭️  Пропущено (уже существуют): %d\n", s.Skipped)
	fmt.Fprintf(r.out, "   ❌ Ошибок: %d\n", s.Failed)
	if r.cfg.Verbose {
		if s.Converted > 0 && !r.cfg.DryRun {
			fmt.Fprintf(r.out, "   📦 Объём: %s -> %s\n",
				humanize.IBytes(uint64(s.InputBytes)), humanize.IBytes(uint64(s.OutputBytes)))
		}
		fmt.Fprintf(r.out, "   ⏱️  Время: %s\n", time.Since(r.startTime).Round(time.Millisecond))
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "✨ Конвертация завершена!")

	if r.journal != nil {
		if err := r.journal.FinishRun(r.runID, s.Converted, s.Skipped, s.Failed); err != nil {
			r.log.Warn("не удалось завершить запись запуска", slog.Any("error", err))
		}
	}

	return s
}

// Stats возвращает текущую статистику.
func (r *Runner) Stats() Stats {
	return r.stats
}

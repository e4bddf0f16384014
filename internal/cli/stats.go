package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/artemshloyda/heic2jpg/internal/storage"
)

// newStatsCmd создаёт команду stats.
func newStatsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
		runID  int64
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику из журнала запусков",
		Long: `Показать статистику из SQLite журнала, который ведётся с флагом --db.

Примеры:
  # Итоги и последние 10 запусков
  heic2jpg stats --db ./.heic2jpg/journal.sqlite

  # Файлы одного запуска
  heic2jpg stats --db ./.heic2jpg/journal.sqlite --run 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("не удалось открыть журнал: %w", err)
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if runID > 0 {
				return printConversions(out, store, runID)
			}
			return printRuns(out, store, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Путь к SQLite журналу")
	cmd.Flags().IntVar(&limit, "limit", 10, "Сколько последних запусков показать")
	cmd.Flags().Int64Var(&runID, "run", 0, "Показать файлы указанного запуска")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func printRuns(out io.Writer, store *storage.Storage, limit int) error {
	runs, converted, skipped, failed, err := store.GetStats()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "📊 Журнал:")
	fmt.Fprintf(out, "   Запусков: %d\n", runs)
	fmt.Fprintf(out, "   ✅ Сконвертировано: %d\n", converted)
	fmt.Fprintf(out, "   ⏭️  Пропущено: %d\n", skipped)
	fmt.Fprintf(out, "   ❌ Ошибок: %d\n", failed)

	recent, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}

	tw := newTable(out)
	tw.AppendHeader(table.Row{"ID", "Начало", "Директория", "Готово", "Пропущено", "Ошибок", "Режим"})
	for _, r := range recent {
		mode := ""
		if r.DryRun {
			mode = "dry-run"
		}
		if r.FinishedAt == nil {
			mode = "идёт"
		}
		tw.AppendRow(table.Row{r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Root, r.Converted, r.Skipped, r.Failed, mode})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	fmt.Fprintln(out)
	tw.Render()
	return nil
}

func printConversions(out io.Writer, store *storage.Storage, runID int64) error {
	conversions, err := store.Conversions(runID)
	if err != nil {
		return err
	}
	if len(conversions) == 0 {
		fmt.Fprintf(out, "Записей для запуска %d нет.\n", runID)
		return nil
	}

	tw := newTable(out)
	tw.AppendHeader(table.Row{"Исходник", "Исход", "Время", "Ошибка"})
	for _, c := range conversions {
		msg := ""
		if c.Error != nil {
			msg = *c.Error
		}
		tw.AppendRow(table.Row{c.SrcPath, string(c.Outcome), c.Duration, msg})
	}
	tw.Render()
	return nil
}

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	return tw
}

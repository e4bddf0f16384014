// Package progress предоставляет прогресс-бар для пакетной конвертации.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Bar - прогресс-бар поверх progressbar/v3. Нулевой *Bar безопасен:
// все методы ничего не делают.
type Bar struct {
	bar *progressbar.ProgressBar

	// mu защищает bar.
	mu sync.Mutex
}

// Options содержит настройки прогресс-бара.
type Options struct {
	// Total - количество найденных файлов.
	Total int64

	// Description - подпись слева от бара.
	Description string

	// Writer - куда рисовать бар (по умолчанию os.Stderr).
	Writer io.Writer

	// Force - рисовать бар даже если Writer не терминал.
	Force bool
}

// IsTerminal сообщает, подключён ли w к терминалу.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New создаёт прогресс-бар. Возвращает nil, если рисовать нечего
// (нет файлов или вывод не терминал).
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	if opts.Total <= 0 || (!opts.Force && !IsTerminal(writer)) {
		return nil
	}

	description := opts.Description
	if description == "" {
		description = "Конвертация"
	}

	return &Bar{
		bar: progressbar.NewOptions64(
			opts.Total,
			progressbar.OptionSetWriter(writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]▓[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(writer)
			}),
			progressbar.OptionSetPredictTime(true),
		),
	}
}

// Add отмечает обработку одного файла.
func (b *Bar) Add() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Add(1)
}

// AddTotal увеличивает ожидаемое количество файлов (режим наблюдения).
func (b *Bar) AddTotal(n int64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.ChangeMax64(b.bar.GetMax64() + n)
}

// Printf выводит сообщение в out, временно скрывая бар.
func (b *Bar) Printf(out io.Writer, format string, args ...any) {
	if b == nil {
		fmt.Fprintf(out, format, args...)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.bar.Clear()
	fmt.Fprintf(out, format, args...)
	_ = b.bar.RenderBlank()
}

// Finish завершает прогресс-бар.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}

// Package storage содержит SQLite журнал запусков конвертации.
package storage

import "time"

// Outcome - исход обработки одного файла.
type Outcome string

const (
	// OutcomeConverted - файл сконвертирован.
	OutcomeConverted Outcome = "converted"
	// OutcomeSkipped - выходной файл уже существовал.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed - ошибка декодирования или кодирования.
	OutcomeFailed Outcome = "failed"
)

// Run - один запуск утилиты.
type Run struct {
	ID         int64
	Root       string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Converted  int64
	Skipped    int64
	Failed     int64
}

// Total возвращает количество обработанных файлов запуска.
func (r Run) Total() int64 {
	return r.Converted + r.Skipped + r.Failed
}

// Conversion - запись об одном файле в рамках запуска.
type Conversion struct {
	ID       int64
	RunID    int64
	SrcPath  string
	DstPath  string
	Outcome  Outcome
	Error    *string
	Duration time.Duration
}

// Package converter содержит процедуру конвертации одного HEIC/HEIF файла в JPEG.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/heic2jpg/internal/config"
)

// Converter декодирует, выравнивает и кодирует один файл.
type Converter struct {
	codec Codec

	// opts - параметры JPEG (качество фиксировано).
	opts EncodeOptions

	// timeout - таймаут на конвертацию одного файла.
	timeout time.Duration

	log *slog.Logger
}

// ConvertResult содержит результат конвертации.
type ConvertResult struct {
	// Success - успешна ли конвертация.
	Success bool

	// DstPath - путь к выходному файлу.
	DstPath string

	// Mode - цветовая модель исходника (если удалось декодировать).
	Mode ColorMode

	// Error - ошибка (если есть).
	Error error

	// Duration - время конвертации.
	Duration time.Duration
}

// Message возвращает текст ошибки для вывода в консоль.
func (r *ConvertResult) Message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// New создаёт новый Converter.
func New(codec Codec, cfg *config.Config, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	return &Converter{
		codec: codec,
		opts: EncodeOptions{
			Quality:  config.Quality,
			Optimize: cfg.Optimize,
		},
		timeout: 5 * time.Minute,
		log:     log,
	}
}

// SetTimeout устанавливает таймаут на конвертацию.
func (c *Converter) SetTimeout(d time.Duration) {
	c.timeout = d
}

// tempSuffix - окончание имени временного файла. Расширение
// сохраняется: vips выбирает формат по нему.
const tempSuffix = ".converting" + config.OutputExtension

// outputPerm - права созданного JPEG.
const outputPerm = 0o644

// createTemp создаёт рядом с dstPath новый скрытый файл с уникальным
// именем. Файл создаётся эксклюзивно, поэтому чужой файл не может
// оказаться под этим именем.
func createTemp(dstPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(dstPath), filepath.Ext(dstPath))
	f, err := os.CreateTemp(filepath.Dir(dstPath), "."+base+".*"+tempSuffix)
	if err != nil {
		return "", fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	return path, nil
}

// Convert конвертирует srcPath в dstPath. Вызывающий гарантирует,
// что dstPath не существует. Запись атомарная: при любой ошибке
// dstPath не создаётся.
func (c *Converter) Convert(ctx context.Context, srcPath, dstPath string) *ConvertResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fail := func(mode ColorMode, err error) *ConvertResult {
		return &ConvertResult{
			Success:  false,
			Mode:     mode,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	img, err := c.codec.Decode(ctx, srcPath)
	if err != nil {
		return fail("", err)
	}

	mode := ModeOf(img)
	flat := Flatten(img)
	c.log.Debug("decoded",
		slog.String("src", srcPath),
		slog.String("mode", string(mode)),
		slog.Int("width", flat.Bounds().Dx()),
		slog.Int("height", flat.Bounds().Dy()),
	)

	tmpPath, err := createTemp(dstPath)
	if err != nil {
		return fail(mode, err)
	}
	if err := c.codec.Encode(ctx, flat, tmpPath, c.opts); err != nil {
		_ = os.Remove(tmpPath)
		return fail(mode, err)
	}

	// CreateTemp создаёт файл с правами 0600.
	if err := os.Chmod(tmpPath, outputPerm); err != nil {
		_ = os.Remove(tmpPath)
		return fail(mode, fmt.Errorf("не удалось выставить права %s: %w", tmpPath, err))
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return fail(mode, fmt.Errorf("не удалось переименовать %s -> %s: %w", tmpPath, dstPath, err))
	}

	return &ConvertResult{
		Success:  true,
		DstPath:  dstPath,
		Mode:     mode,
		Duration: time.Since(start),
	}
}

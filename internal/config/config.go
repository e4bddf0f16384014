// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultInputDir - корневая директория с изображениями по умолчанию.
	DefaultInputDir = "public/images"

	// OutputExtension - расширение выходных файлов (всегда в нижнем регистре).
	OutputExtension = ".jpg"

	// Quality - фиксированное качество JPEG.
	Quality = 90

	// StateDirName - служебная директория журнала, сканер в неё не заходит.
	StateDirName = ".heic2jpg"
)

// InputExtensions - расширения входных файлов в порядке обхода.
// Сравнение регистрозависимое, поэтому оба регистра перечислены явно.
var InputExtensions = []string{".HEIC", ".heic", ".HEIF", ".heif"}

// Config содержит все настройки запуска.
type Config struct {
	// InputDir - корневая директория с HEIC/HEIF файлами.
	InputDir string

	// VipsPath - путь к vips бинарнику (опционально).
	VipsPath string

	// DBPath - путь к SQLite журналу (пусто = журнал выключен).
	DBPath string

	// DryRun - режим симуляции без записи файлов.
	DryRun bool

	// Watch - после обработки продолжать следить за директорией.
	Watch bool

	// Progress - показывать прогресс-бар (только в терминале).
	Progress bool

	// Verbose - подробный вывод.
	Verbose bool

	// Optimize - оптимизация таблиц Хаффмана при кодировании JPEG.
	Optimize bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		InputDir: DefaultInputDir,
		Optimize: true,
	}
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("входная директория не указана (--in)")
	}
	if c.Watch && c.DryRun {
		return fmt.Errorf("--watch и --dry-run нельзя использовать вместе")
	}
	return nil
}

// ResolveRoot приводит InputDir к абсолютному очищенному пути.
// Блокировка и журнал ключуются по этому пути.
func (c *Config) ResolveRoot() error {
	abs, err := filepath.Abs(c.InputDir)
	if err != nil {
		return fmt.Errorf("не удалось получить абсолютный путь %s: %w", c.InputDir, err)
	}
	c.InputDir = abs
	return nil
}

// HasInputExtension проверяет, входит ли расширение в фиксированный набор.
// Регистр учитывается: ".Heic" не подходит.
func HasInputExtension(ext string) bool {
	for _, e := range InputExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

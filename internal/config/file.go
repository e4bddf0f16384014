package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Файл читается только если путь передан явно через --config.
type FileConfig struct {
	// Input - настройки входных данных.
	Input *InputConfig `yaml:"input,omitempty"`

	// Run - настройки запуска.
	Run *RunConfig `yaml:"run,omitempty"`

	// Paths - пути к внешним ресурсам.
	Paths *PathsConfig `yaml:"paths,omitempty"`
}

// InputConfig содержит настройки входных данных.
type InputConfig struct {
	// Dir - корневая директория с HEIC/HEIF файлами.
	Dir string `yaml:"dir,omitempty"`
}

// RunConfig содержит настройки запуска.
type RunConfig struct {
	DryRun   bool `yaml:"dry_run,omitempty"`
	Watch    bool `yaml:"watch,omitempty"`
	Progress bool `yaml:"progress,omitempty"`
	Verbose  bool `yaml:"verbose,omitempty"`
}

// PathsConfig содержит пути к внешним ресурсам.
type PathsConfig struct {
	// DB - путь к SQLite журналу.
	DB string `yaml:"db,omitempty"`

	// VipsPath - путь к бинарнику vips.
	VipsPath string `yaml:"vips_path,omitempty"`
}

// LoadFromFile загружает конфигурацию из указанного файла.
// В отличие от автопоиска, отсутствие файла здесь является ошибкой.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// ApplyToConfig переносит заданные в файле значения в конфигурацию.
// Вызывается до применения CLI флагов: флаги имеют приоритет.
func (fc *FileConfig) ApplyToConfig(cfg *Config) {
	if fc == nil {
		return
	}

	if fc.Input != nil && fc.Input.Dir != "" {
		cfg.InputDir = fc.Input.Dir
	}

	if fc.Run != nil {
		cfg.DryRun = cfg.DryRun || fc.Run.DryRun
		cfg.Watch = cfg.Watch || fc.Run.Watch
		cfg.Progress = cfg.Progress || fc.Run.Progress
		cfg.Verbose = cfg.Verbose || fc.Run.Verbose
	}

	if fc.Paths != nil {
		if fc.Paths.DB != "" {
			cfg.DBPath = fc.Paths.DB
		}
		if fc.Paths.VipsPath != "" {
			cfg.VipsPath = fc.Paths.VipsPath
		}
	}
}

// GenerateExampleConfig возвращает пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# heic2jpg configuration file
# Все параметры опциональны. CLI флаги имеют приоритет над этим файлом.
# Качество JPEG фиксировано (90) и здесь не настраивается.

input:
  # Корневая директория с HEIC/HEIF файлами
  dir: "public/images"

run:
  # Симуляция без записи файлов
  dry_run: false
  # Следить за директорией после обработки
  watch: false
  # Прогресс-бар в терминале
  progress: false
  # Подробный вывод
  verbose: false

paths:
  # SQLite журнал запусков (пусто = выключен)
  db: ""
  # Путь к бинарнику vips (по умолчанию автопоиск)
  vips_path: ""
`
}

// Package vipsfinder отвечает за поиск бинарника vips и проверку поддержки HEIF.
package vipsfinder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var (
	// ErrNotFound - ни один кандидат не оказался рабочим vips.
	ErrNotFound = errors.New("vips не найден")

	// ErrNoHEIFSupport - vips собран без libheif.
	ErrNoHEIFSupport = errors.New("vips собран без поддержки HEIF (heifload)")
)

// EnvVar - переменная окружения с путём к vips.
const EnvVar = "HEIC2JPG_VIPS"

// probeTimeout ограничивает служебные вызовы vips.
const probeTimeout = 10 * time.Second

// VipsInfo содержит информацию о найденном vips.
type VipsInfo struct {
	// Path - абсолютный путь к бинарнику vips.
	Path string

	// Version - версия vips (например, "8.14.2").
	Version string
}

// Finder ищет бинарник vips.
type Finder struct {
	// CustomPath - путь из флага --vips-path.
	CustomPath string

	// EnvVar - имя переменной окружения для пути к vips.
	EnvVar string

	// lookPath подменяется в тестах.
	lookPath func(string) (string, error)
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     EnvVar,
		lookPath:   exec.LookPath,
	}
}

// Find ищет vips в следующем порядке:
// 1. CustomPath (если задан)
// 2. Переменная окружения HEIC2JPG_VIPS
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/vips
func (f *Finder) Find() (*VipsInfo, error) {
	for _, path := range f.candidates() {
		if info, err := probe(path); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w. Проверьте:\n"+
		"  1. Установлен ли vips с libheif (apt install libvips-tools / brew install vips)\n"+
		"  2. Установлена ли переменная окружения %s\n"+
		"  3. Указан ли путь через флаг --vips-path", ErrNotFound, f.EnvVar)
}

func (f *Finder) candidates() []string {
	var candidates []string

	if f.CustomPath != "" {
		// Явно указанный путь не подменяется автопоиском.
		return []string{f.CustomPath}
	}

	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	lookPath := f.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if pathVips, err := lookPath("vips"); err == nil {
		candidates = append(candidates, pathVips)
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, binaryName()),
			filepath.Join(execDir, "bin", binaryName()),
		)
	}

	return candidates
}

// probe проверяет, является ли путь рабочим vips.
func probe(path string) (*VipsInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, absPath, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить vips --version: %w", err)
	}

	return &VipsInfo{
		Path:    absPath,
		Version: parseVersion(string(output)),
	}, nil
}

// CheckHEIF убеждается, что vips умеет читать HEIF.
// Список загрузчиков берётся из "vips -l foreign".
func (v *VipsInfo) CheckHEIF() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, v.Path, "-l", "foreign").Output()
	if err != nil {
		return fmt.Errorf("не удалось получить список загрузчиков vips: %w", err)
	}

	if !hasHEIFLoader(string(output)) {
		return ErrNoHEIFSupport
	}
	return nil
}

// hasHEIFLoader ищет heifload в выводе "vips -l".
func hasHEIFLoader(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "(heifload)") || strings.Contains(line, "heifload_source") {
			return true
		}
	}
	return false
}

// parseVersion извлекает версию из вывода "vips --version".
// Пример вывода: "vips-8.14.2"
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	if i := strings.IndexAny(output, "\r\n"); i >= 0 {
		output = output[:i]
	}

	for _, prefix := range []string{"vips-", "vips "} {
		if strings.HasPrefix(output, prefix) {
			return strings.TrimPrefix(output, prefix)
		}
	}
	return output
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "vips.exe"
	}
	return "vips"
}

// Package scanner отвечает за поиск HEIC/HEIF файлов в дереве директорий.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/heic2jpg/internal/config"
)

// File представляет файл для обработки.
type File struct {
	// Path - путь к файлу (относительно рабочей директории или абсолютный,
	// в зависимости от того, как задан корень).
	Path string

	// RelPath - путь относительно корня сканирования.
	RelPath string

	// Size - размер файла в байтах.
	Size int64
}

// Scanner обходит корневую директорию.
type Scanner struct {
	root string

	// warn - куда писать предупреждения о нечитаемых элементах.
	warn io.Writer
}

// New создаёт новый Scanner.
func New(root string) *Scanner {
	return &Scanner{root: root, warn: os.Stderr}
}

// SetWarnWriter задаёт вывод для предупреждений.
func (s *Scanner) SetWarnWriter(w io.Writer) {
	s.warn = w
}

// Scan возвращает все файлы с расширениями из config.InputExtensions.
// Каждое расширение - отдельный полный обход; результаты склеиваются
// в порядке расширений. Расширение сравнивается с реальным именем
// файла, поэтому один файл не попадает в список дважды.
func (s *Scanner) Scan(ctx context.Context) ([]File, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s не является директорией", s.root)
	}

	var files []File
	for _, ext := range config.InputExtensions {
		found, err := s.walk(ctx, ext)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	return files, nil
}

// walk собирает файлы с одним конкретным расширением.
func (s *Scanner) walk(ctx context.Context, ext string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == s.root {
				return err
			}
			fmt.Fprintf(s.warn, "⚠️  Не удалось прочитать %s: %v\n", path, err)
			return nil
		}

		if d.IsDir() {
			if path != s.root && d.Name() == config.StateDirName {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ext {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			fmt.Fprintf(s.warn, "⚠️  Не удалось получить info %s: %v\n", path, err)
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			relPath = filepath.Base(path)
		}

		files = append(files, File{
			Path:    path,
			RelPath: relPath,
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода %s: %w", s.root, err)
	}

	return files, nil
}

// Match сообщает, подходит ли путь под входные расширения.
// Используется режимом наблюдения, где полного обхода нет.
func Match(path string) bool {
	return config.HasInputExtension(filepath.Ext(path))
}

// OutputPath строит путь к JPEG рядом с исходником:
// та же директория и имя, расширение заменено на ".jpg".
func OutputPath(srcPath string) string {
	ext := filepath.Ext(srcPath)
	return strings.TrimSuffix(srcPath, ext) + config.OutputExtension
}

// Package watcher следит за корневой директорией и сообщает о новых HEIC/HEIF файлах.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/artemshloyda/heic2jpg/internal/config"
	"github.com/artemshloyda/heic2jpg/internal/scanner"
)

// Watcher отправляет в канал файлы, которые перестали изменяться.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
	log  *slog.Logger

	// debounceTime - сколько файл должен не меняться перед отправкой.
	debounceTime time.Duration

	// tick - период проверки pending.
	tick time.Duration

	// pending - путь -> время последнего события. Доступ только из run.
	pending map[string]time.Time
}

// New создаёт новый Watcher для root.
func New(root string, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Watcher{
		root:         root,
		fsw:          fsw,
		log:          log,
		debounceTime: 500 * time.Millisecond,
		tick:         100 * time.Millisecond,
		pending:      make(map[string]time.Time),
	}, nil
}

// SetDebounceTime устанавливает время debounce.
func (w *Watcher) SetDebounceTime(d time.Duration) {
	w.debounceTime = d
}

// Watch начинает слежение. Канал закрывается после отмены ctx.
func (w *Watcher) Watch(ctx context.Context) (<-chan scanner.File, error) {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.fsw.Close()
		return nil, err
	}

	files := make(chan scanner.File)
	go w.run(ctx, files)
	return files, nil
}

// addRecursive добавляет директорию и все поддиректории.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && d.Name() == config.StateDirName {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
		}
		return nil
	})
}

// run - единственная горутина, владеющая pending.
func (w *Watcher) run(ctx context.Context, files chan<- scanner.File) {
	defer close(files)
	defer func() { _ = w.fsw.Close() }()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("ошибка watcher", slog.Any("error", err))

		case <-ticker.C:
			for _, f := range w.ready(time.Now()) {
				select {
				case files <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// handle обновляет pending по событию fsnotify.
func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(w.pending, event.Name)
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		// Новая директория: подписываемся на неё и подбираем то,
		// что успело появиться внутри до подписки.
		if event.Op&fsnotify.Create != 0 && info.Name() != config.StateDirName {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Warn("не удалось подписаться на директорию", slog.String("dir", event.Name), slog.Any("error", err))
			}
			w.collect(event.Name)
		}
		return
	}

	if scanner.Match(event.Name) {
		w.pending[event.Name] = time.Now()
	}
}

// collect ставит в pending подходящие файлы из новой директории.
func (w *Watcher) collect(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && scanner.Match(path) {
			w.pending[path] = time.Now()
		}
		return nil
	})
}

// ready извлекает файлы, не менявшиеся дольше debounceTime.
func (w *Watcher) ready(now time.Time) []scanner.File {
	var out []scanner.File
	for path, seen := range w.pending {
		if now.Sub(seen) < w.debounceTime {
			continue
		}
		delete(w.pending, path)

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			relPath = filepath.Base(path)
		}
		out = append(out, scanner.File{Path: path, RelPath: relPath, Size: info.Size()})
	}
	return out
}

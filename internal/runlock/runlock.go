// Package runlock не даёт двум запускам обрабатывать одну директорию одновременно.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked - директория уже обрабатывается другим процессом.
var ErrLocked = errors.New("директория уже обрабатывается другим запуском")

// Lock - удерживаемая блокировка корневой директории.
type Lock struct {
	fl *flock.Flock
}

// Path возвращает путь lock-файла для root. Файл лежит во временной
// директории ОС, чтобы не попадать в публикуемое дерево изображений.
func Path(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("не удалось получить абсолютный путь %s: %w", root, err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return filepath.Join(os.TempDir(), "heic2jpg-"+hex.EncodeToString(sum[:8])+".lock"), nil
}

// Acquire захватывает блокировку без ожидания.
func Acquire(root string) (*Lock, error) {
	path, err := Path(root)
	if err != nil {
		return nil, err
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("не удалось захватить %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &Lock{fl: fl}, nil
}

// Release освобождает блокировку.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}

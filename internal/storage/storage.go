package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage - журнал запусков в SQLite.
type Storage struct {
	db *sql.DB
}

// New открывает (или создаёт) базу и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// Запись идёт из одного потока, одного соединения достаточно.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun регистрирует новый запуск и возвращает его ID.
func (s *Storage) StartRun(root string, dryRun bool) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (root, dry_run, started_at) VALUES (?, ?, ?)",
		root, dryRun, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("не удалось создать запись запуска: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("не удалось получить ID запуска: %w", err)
	}
	return id, nil
}

// Record сохраняет исход обработки одного файла.
func (s *Storage) Record(runID int64, c Conversion) error {
	var errMsg *string
	if c.Error != nil && *c.Error != "" {
		errMsg = c.Error
	}

	_, err := s.db.Exec(`
		INSERT INTO conversions (run_id, src_path, dst_path, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, c.SrcPath, c.DstPath, string(c.Outcome), errMsg, c.Duration.Milliseconds(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("не удалось записать исход для %s: %w", c.SrcPath, err)
	}
	return nil
}

// FinishRun сохраняет итоговые счётчики запуска.
func (s *Storage) FinishRun(runID, converted, skipped, failed int64) error {
	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, converted = ?, skipped = ?, failed = ? WHERE id = ?",
		time.Now().Unix(), converted, skipped, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("не удалось завершить запуск %d: %w", runID, err)
	}
	return nil
}

// RecentRuns возвращает последние запуски, новые первыми.
func (s *Storage) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, root, dry_run, started_at, finished_at, converted, skipped, failed
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать запуски: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  int64
			finishedAt sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Root, &r.DryRun, &startedAt, &finishedAt,
			&r.Converted, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("не удалось прочитать запуск: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Conversions возвращает записи одного запуска в порядке обработки.
func (s *Storage) Conversions(runID int64) ([]Conversion, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, src_path, dst_path, outcome, error, duration_ms
		FROM conversions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать записи запуска %d: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Conversion
	for rows.Next() {
		var (
			c          Conversion
			outcome    string
			errMsg     sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&c.ID, &c.RunID, &c.SrcPath, &c.DstPath, &outcome, &errMsg, &durationMS); err != nil {
			return nil, fmt.Errorf("не удалось прочитать запись: %w", err)
		}
		c.Outcome = Outcome(outcome)
		if errMsg.Valid {
			msg := errMsg.String
			c.Error = &msg
		}
		c.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetStats возвращает суммарные исходы по всем запускам.
func (s *Storage) GetStats() (runs, converted, skipped, failed int64, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(converted), 0), COALESCE(SUM(skipped), 0), COALESCE(SUM(failed), 0)
		FROM runs`).Scan(&runs, &converted, &skipped, &failed)
	if err != nil {
		err = fmt.Errorf("не удалось получить статистику: %w", err)
	}
	return
}

// CleanupUnfinished закрывает прерванные аварийно запуски для root:
// счётчики восстанавливаются по записанным исходам. Вызывается под
// блокировкой root, поэтому активных запусков для него нет.
func (s *Storage) CleanupUnfinished(root string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = started_at,
			converted = (SELECT COUNT(*) FROM conversions c WHERE c.run_id = runs.id AND c.outcome = 'converted'),
			skipped   = (SELECT COUNT(*) FROM conversions c WHERE c.run_id = runs.id AND c.outcome = 'skipped'),
			failed    = (SELECT COUNT(*) FROM conversions c WHERE c.run_id = runs.id AND c.outcome = 'failed')
		WHERE finished_at IS NULL AND root = ?`, root)
	if err != nil {
		return 0, fmt.Errorf("не удалось закрыть прерванные запуски: %w", err)
	}
	return res.RowsAffected()
}

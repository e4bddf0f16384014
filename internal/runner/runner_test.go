package runner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artemshloyda/heic2jpg/internal/config"
	"github.com/artemshloyda/heic2jpg/internal/converter"
	"github.com/artemshloyda/heic2jpg/internal/scanner"
	"github.com/artemshloyda/heic2jpg/internal/storage"
)

// pngCodec декодирует PNG под видом HEIC и кодирует JPEG стандартной библиотекой.
type pngCodec struct{}

func (pngCodec) Decode(_ context.Context, srcPath string) (image.Image, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func (pngCodec) Encode(_ context.Context, img image.Image, dstPath string, opts converter.EncodeOptions) error {
	f, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// memJournal - журнал в памяти.
type memJournal struct {
	started  int
	records  []storage.Conversion
	finished [3]int64
	failOpen bool
}

func (j *memJournal) StartRun(string, bool) (int64, error) {
	if j.failOpen {
		return 0, errors.New("db locked")
	}
	j.started++
	return 42, nil
}

func (j *memJournal) Record(runID int64, c storage.Conversion) error {
	if runID != 42 {
		return errors.New("unexpected run id")
	}
	j.records = append(j.records, c)
	return nil
}

func (j *memJournal) FinishRun(_ int64, converted, skipped, failed int64) error {
	j.finished = [3]int64{converted, skipped, failed}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func newRunner(cfg *config.Config, out io.Writer) *Runner {
	conv := converter.New(pngCodec{}, cfg, quietLogger())
	return New(cfg, conv, out, quietLogger())
}

// runOnce выполняет полный цикл как CLI: обход, обработка, итоги.
func runOnce(t *testing.T, r *Runner, root string) Stats {
	t.Helper()
	files, err := scanner.New(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	r.Begin()
	r.Process(context.Background(), files)
	return r.Finish()
}

func TestRun_ConvertedAndBroken(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "photo.HEIC"), 100, 100, color.NRGBA{R: 12, G: 140, B: 230, A: 255})
	if err := os.WriteFile(filepath.Join(root, "broken.heic"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	var out bytes.Buffer

	stats := runOnce(t, newRunner(cfg, &out), root)

	if stats.Converted != 1 || stats.Skipped != 0 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want converted=1 skipped=0 failed=1", stats)
	}
	if stats.Discovered != stats.Converted+stats.Skipped+stats.Failed {
		t.Errorf("counters do not add up: %+v", stats)
	}

	f, err := os.Open(filepath.Join(root, "photo.jpg"))
	if err != nil {
		t.Fatalf("photo.jpg missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("photo.jpg is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("size = %dx%d, want 100x100", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	if d := int(r>>8) - 12; d < -4 || d > 4 {
		t.Errorf("r = %d, want ~12", r>>8)
	}
	if d := int(g>>8) - 140; d < -4 || d > 4 {
		t.Errorf("g = %d, want ~140", g>>8)
	}
	if d := int(b>>8) - 230; d < -4 || d > 4 {
		t.Errorf("b = %d, want ~230", b>>8)
	}

	if _, err := os.Stat(filepath.Join(root, "broken.jpg")); !os.IsNotExist(err) {
		t.Errorf("broken.jpg must not exist, stat err = %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"✅ -> photo.jpg",
		"Конвертация: broken.heic... ❌",
		"Сконвертировано: 1",
		"Пропущено (уже существуют): 0",
		"Ошибок: 1",
		"✨ Конвертация завершена!",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRun_SkippedOutputSurvivesNeighbourConversion(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.heic"), 4, 4, color.NRGBA{R: 9, G: 9, B: 9, A: 255})
	writePNG(t, filepath.Join(root, "a.converting.heic"), 4, 4, color.NRGBA{R: 9, G: 9, B: 9, A: 255})
	kept := filepath.Join(root, "a.converting.jpg")
	if err := os.WriteFile(kept, []byte("KEEP"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = root

	stats := runOnce(t, newRunner(cfg, io.Discard), root)
	if stats.Converted != 1 || stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want converted=1 skipped=1 failed=0", stats)
	}

	data, err := os.ReadFile(kept)
	if err != nil {
		t.Fatalf("a.converting.jpg lost: %v", err)
	}
	if string(data) != "KEEP" {
		t.Errorf("a.converting.jpg changed: %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "a.jpg")); err != nil {
		t.Errorf("a.jpg not created: %v", err)
	}
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.heic", "b.HEIC", filepath.Join("sub", "c.heif")} {
		writePNG(t, filepath.Join(root, name), 8, 8, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = root

	first := runOnce(t, newRunner(cfg, io.Discard), root)
	if first.Converted != 3 || first.Skipped != 0 || first.Failed != 0 {
		t.Fatalf("first run = %+v, want 3/0/0", first)
	}

	outputs := map[string][]byte{}
	for _, name := range []string{"a.jpg", "b.jpg", filepath.Join("sub", "c.jpg")} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		outputs[name] = data
	}

	var out bytes.Buffer
	second := runOnce(t, newRunner(cfg, &out), root)
	if second.Converted != 0 || second.Skipped != 3 || second.Failed != 0 {
		t.Fatalf("second run = %+v, want 0/3/0", second)
	}
	if strings.Count(out.String(), "Уже существует") != 3 {
		t.Errorf("expected 3 skip lines:\n%s", out.String())
	}

	for name, before := range outputs {
		after, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.Equal(before, after) {
			t.Errorf("%s was rewritten", name)
		}
	}
}

func TestRun_ExistingOutputIsNotTouched(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "x.heic"), 4, 4, color.NRGBA{A: 255})
	stale := []byte("stale partial output")
	if err := os.WriteFile(filepath.Join(root, "x.jpg"), stale, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	stats := runOnce(t, newRunner(cfg, io.Discard), root)

	if stats.Skipped != 1 || stats.Converted != 0 {
		t.Fatalf("stats = %+v, want skipped=1", stats)
	}
	got, _ := os.ReadFile(filepath.Join(root, "x.jpg"))
	if !bytes.Equal(got, stale) {
		t.Error("existing output was modified")
	}
}

func TestRun_EmptyDirectory(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputDir = root

	var out bytes.Buffer
	stats := runOnce(t, newRunner(cfg, &out), root)

	if stats != (Stats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
	for _, want := range []string{"Сконвертировано: 0", "Пропущено (уже существуют): 0", "Ошибок: 0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.heic"), 4, 4, color.NRGBA{A: 255})

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	cfg.DryRun = true

	var out bytes.Buffer
	stats := runOnce(t, newRunner(cfg, &out), root)

	if stats.Converted != 1 {
		t.Fatalf("stats = %+v, want converted=1", stats)
	}
	if _, err := os.Stat(filepath.Join(root, "a.jpg")); !os.IsNotExist(err) {
		t.Errorf("dry-run must not create output, stat err = %v", err)
	}
	if !strings.Contains(out.String(), "[dry-run] a.heic -> a.jpg") {
		t.Errorf("missing dry-run line:\n%s", out.String())
	}
}

func TestRun_JournalRecordsEveryFile(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "ok.heic"), 4, 4, color.NRGBA{A: 255})
	writePNG(t, filepath.Join(root, "done.heic"), 4, 4, color.NRGBA{A: 255})
	if err := os.WriteFile(filepath.Join(root, "done.jpg"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bad.heic"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	j := &memJournal{}
	r := newRunner(cfg, io.Discard)
	r.SetJournal(j)

	runOnce(t, r, root)

	if j.started != 1 {
		t.Errorf("StartRun called %d times, want 1", j.started)
	}
	if len(j.records) != 3 {
		t.Fatalf("records = %d, want 3", len(j.records))
	}
	if j.finished != [3]int64{1, 1, 1} {
		t.Errorf("finished counters = %v, want [1 1 1]", j.finished)
	}

	byOutcome := map[storage.Outcome]storage.Conversion{}
	for _, c := range j.records {
		byOutcome[c.Outcome] = c
	}
	failed, ok := byOutcome[storage.OutcomeFailed]
	if !ok || failed.Error == nil || *failed.Error == "" {
		t.Errorf("failed record should carry error: %+v", failed)
	}
	if filepath.Base(byOutcome[storage.OutcomeSkipped].DstPath) != "done.jpg" {
		t.Errorf("skipped record dst = %q", byOutcome[storage.OutcomeSkipped].DstPath)
	}
}

func TestRun_JournalUnavailableDoesNotStopRun(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.heic"), 4, 4, color.NRGBA{A: 255})

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	j := &memJournal{failOpen: true}
	r := newRunner(cfg, io.Discard)
	r.SetJournal(j)

	stats := runOnce(t, r, root)
	if stats.Converted != 1 {
		t.Fatalf("stats = %+v, want converted=1", stats)
	}
	if len(j.records) != 0 {
		t.Errorf("journal should be disabled, got %d records", len(j.records))
	}
}

func TestProcess_StopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.heic"), 4, 4, color.NRGBA{A: 255})
	writePNG(t, filepath.Join(root, "b.heic"), 4, 4, color.NRGBA{A: 255})

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	files, err := scanner.New(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(cfg, io.Discard)
	r.Begin()
	r.Process(ctx, files)
	stats := r.Finish()

	if stats.Discovered != 0 {
		t.Errorf("Discovered = %d, want 0 after cancellation", stats.Discovered)
	}
}

func TestCheckRoot(t *testing.T) {
	if err := CheckRoot(t.TempDir()); err != nil {
		t.Errorf("CheckRoot(existing) error = %v", err)
	}

	err := CheckRoot(filepath.Join(t.TempDir(), "public", "images"))
	if !errors.Is(err, ErrRootMissing) {
		t.Errorf("CheckRoot(missing) error = %v, want ErrRootMissing", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := CheckRoot(file); err == nil || errors.Is(err, ErrRootMissing) {
		t.Errorf("CheckRoot(file) error = %v, want non-directory error", err)
	}
}

func TestFinish_VerbosePrintsSizes(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.heic"), 16, 16, color.NRGBA{R: 9, A: 255})

	cfg := config.DefaultConfig()
	cfg.InputDir = root
	cfg.Verbose = true

	var out bytes.Buffer
	stats := runOnce(t, newRunner(cfg, &out), root)

	if stats.InputBytes == 0 || stats.OutputBytes == 0 {
		t.Errorf("byte counters not filled: %+v", stats)
	}
	if !strings.Contains(out.String(), "Объём:") {
		t.Errorf("verbose summary missing sizes:\n%s", out.String())
	}
}

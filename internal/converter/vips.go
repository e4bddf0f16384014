package converter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EncodeOptions - параметры кодирования JPEG.
type EncodeOptions struct {
	// Quality - качество (0-100).
	Quality int

	// Optimize - оптимизировать таблицы Хаффмана.
	Optimize bool
}

// Codec декодирует исходники и кодирует результат.
type Codec interface {
	// Decode читает изображение из srcPath в память.
	Decode(ctx context.Context, srcPath string) (image.Image, error)

	// Encode записывает img в dstPath. Формат определяется расширением.
	Encode(ctx context.Context, img image.Image, dstPath string, opts EncodeOptions) error
}

// VipsCodec работает через внешний бинарник vips.
// Декодирование: heifload -> PNG без потерь во временной директории.
// Кодирование: PNG -> jpegsave с параметрами в суффиксе пути.
type VipsCodec struct {
	vipsPath string
}

// NewVipsCodec создаёт кодек для указанного бинарника vips.
func NewVipsCodec(vipsPath string) *VipsCodec {
	return &VipsCodec{vipsPath: vipsPath}
}

// Decode реализует Codec.
func (v *VipsCodec) Decode(ctx context.Context, srcPath string) (image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "heic2jpg-decode-*")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	decoded := filepath.Join(tmpDir, "decoded.png")
	if err := v.run(ctx, "copy", srcPath, decoded); err != nil {
		return nil, fmt.Errorf("декодирование %s: %w", filepath.Base(srcPath), err)
	}

	f, err := os.Open(decoded)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть результат декодирования: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать результат декодирования: %w", err)
	}
	return img, nil
}

// Encode реализует Codec.
func (v *VipsCodec) Encode(ctx context.Context, img image.Image, dstPath string, opts EncodeOptions) error {
	tmpDir, err := os.MkdirTemp("", "heic2jpg-encode-*")
	if err != nil {
		return fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	staged := filepath.Join(tmpDir, "flat.png")
	if err := writePNG(staged, img); err != nil {
		return err
	}

	if err := v.run(ctx, "copy", staged, dstPath+jpegSuffix(opts)); err != nil {
		return fmt.Errorf("кодирование %s: %w", filepath.Base(dstPath), err)
	}
	return nil
}

// run выполняет vips и возвращает ошибку со stderr.
func (v *VipsCodec) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, v.vipsPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("vips %s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("vips %s: %w", args[0], err)
	}
	return nil
}

// jpegSuffix возвращает параметры jpegsave в синтаксисе vips.
// Например: "[Q=90,optimize_coding]"
func jpegSuffix(opts EncodeOptions) string {
	params := []string{fmt.Sprintf("Q=%d", opts.Quality)}
	if opts.Optimize {
		params = append(params, "optimize_coding")
	}
	return "[" + strings.Join(params, ",") + "]"
}

// writePNG сохраняет промежуточный PNG. Сжатие минимальное:
// файл живёт только до вызова vips.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("не удалось записать PNG: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("не удалось записать PNG: %w", err)
	}
	return f.Close()
}

package converter

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ColorMode - упрощённая классификация цветовой модели изображения.
type ColorMode string

const (
	// ModeRGB - обычный true-color без альфы (YCbCr, непрозрачный RGBA).
	ModeRGB ColorMode = "rgb"
	// ModeAlpha - есть альфа-канал (RGBA, NRGBA, серый с альфой, NYCbCrA).
	ModeAlpha ColorMode = "alpha"
	// ModePalette - индексированная палитра.
	ModePalette ColorMode = "palette"
	// ModeOther - всё остальное (Gray, CMYK, неизвестные типы).
	ModeOther ColorMode = "other"
)

// opaquer реализуют все изображения из пакета image.
type opaquer interface {
	Opaque() bool
}

// ModeOf определяет цветовую модель изображения.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.RGBA, *image.RGBA64:
		// Так декодер PNG отдаёт и обычный truecolor без альфы.
		if m.(opaquer).Opaque() {
			return ModeRGB
		}
		return ModeAlpha
	case *image.NRGBA, *image.NRGBA64,
		*image.Alpha, *image.Alpha16, *image.NYCbCrA:
		return ModeAlpha
	case *image.Paletted:
		return ModePalette
	case *image.Gray, *image.Gray16, *image.CMYK:
		return ModeOther
	}

	if o, ok := img.(opaquer); ok && !o.Opaque() {
		return ModeAlpha
	}
	return ModeOther
}

// Flatten приводит изображение к непрозрачному true-color.
//
// Изображения с альфой и палитрой накладываются на белый холст того же
// размера: прозрачный пиксель становится белым, непрозрачный сохраняет
// цвет, частичная альфа смешивается линейно. Палитра сначала
// разворачивается в NRGBA. Прочие модели конвертируются напрямую.
// YCbCr уже является true-color и возвращается как есть.
func Flatten(img image.Image) image.Image {
	if _, ok := img.(*image.YCbCr); ok {
		return img
	}

	switch ModeOf(img) {
	case ModePalette:
		return onWhite(expand(img))
	case ModeAlpha:
		return onWhite(img)
	default:
		return toRGB(img)
	}
}

// expand разворачивает палитру в NRGBA.
func expand(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// onWhite накладывает изображение на белый холст (оператор Over).
func onWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// toRGB копирует изображение в RGBA без смешивания.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

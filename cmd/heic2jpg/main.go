// Команда heic2jpg конвертирует HEIC/HEIF изображения в JPEG.
package main

import "github.com/artemshloyda/heic2jpg/internal/cli"

func main() {
	cli.Execute()
}

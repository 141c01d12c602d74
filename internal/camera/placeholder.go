package camera

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

var (
	placeholderOnce sync.Once
	placeholderJPEG []byte
)

// Placeholder é o quadro "sem sinal" servido enquanto a câmera não produziu nada.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, simWidth, simHeight))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{24, 24, 24, 255}}, image.Point{}, draw.Src)
		msg := "Waiting for camera..."
		drawText(img, (simWidth-textWidth(msg, 2))/2, simHeight/2-13, msg, colorWhite, 2)
		placeholderJPEG, _ = encodeJPEG(img, simQuality)
	})
	out := make([]byte, len(placeholderJPEG))
	copy(out, placeholderJPEG)
	return out
}

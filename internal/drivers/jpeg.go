package drivers

import (
	"bufio"
	"bytes"
	"image"
	"image/jpeg"
)

const maxFrameBytes = 8 << 20

// readJPEG lê um JPEG completo (SOI..EOI) de um fluxo MJPEG cru.
// Dentro dos dados comprimidos 0xFF vem sempre escapado, então o primeiro
// FFD9 depois do SOI fecha o frame.
func readJPEG(br *bufio.Reader, limit int) ([]byte, error) {
	var prev byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	buf := make([]byte, 2, 64<<10)
	buf[0], buf[1] = 0xFF, 0xD8
	prev = 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		if len(buf) > limit {
			return nil, ErrFrameTooLarge
		}
		prev = b
	}
}

func decodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

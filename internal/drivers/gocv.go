//go:build gocv

// internal/drivers/gocv.go
package drivers

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Com a tag gocv, RTSP passa a ser lido pelo OpenCV em vez do ffmpeg.
func init() {
	RegisterDriver("opencv", 10, OpenCV, "rtsp", "rtsps", "file")
}

type cvSource struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func OpenCV(_ context.Context, source string) (FrameSource, error) {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture not opened: %s", source)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1) // buffer mínimo, sempre o frame mais novo

	return &cvSource{cap: capture, mat: gocv.NewMat()}, nil
}

// Next segura o mutex durante a leitura: o OpenCV não aceita Close
// concorrente com Read. O Stop do stream não espera além do timeout.
func (s *cvSource) Next() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("capture read failed")
	}
	return s.mat.ToImage()
}

func (s *cvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.cap.Close()
}

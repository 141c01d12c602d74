package camera

import (
	"bytes"
	"image"
	"sync"
	"time"
)

// frameSlot guarda só o frame mais recente. O produtor troca a imagem inteira
// (nunca altera uma imagem já publicada); o JPEG é gerado no primeiro Get.
type frameSlot struct {
	quality int

	mu   sync.Mutex
	img  image.Image
	at   time.Time
	seq  uint64
	jpeg []byte
}

func (s *frameSlot) put(img image.Image, at time.Time) {
	s.mu.Lock()
	s.img = img
	s.at = at
	s.seq++
	s.jpeg = nil
	s.mu.Unlock()
}

func (s *frameSlot) get() []byte {
	s.mu.Lock()
	if s.jpeg != nil {
		out := bytes.Clone(s.jpeg)
		s.mu.Unlock()
		return out
	}
	img, seq := s.img, s.seq
	s.mu.Unlock()

	if img == nil {
		return nil
	}
	data, err := encodeJPEG(img, s.quality)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	if s.seq == seq && s.jpeg == nil {
		s.jpeg = data
	}
	s.mu.Unlock()
	return bytes.Clone(data)
}

func (s *frameSlot) has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq > 0
}

func (s *frameSlot) capturedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

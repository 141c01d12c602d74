package dispatcher

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	videoBoundary    = "frame"
	VideoContentType = "multipart/x-mixed-replace; boundary=" + videoBoundary

	placeholderEvery = time.Second
	idleSleep        = 50 * time.Millisecond
)

// FrameSource entrega o JPEG mais recente do quarto (camera.Manager).
type FrameSource interface {
	Frame(room string) []byte
}

// VideoFeed serve um quarto como MJPEG. Cada espectador lê o slot do quarto
// no seu próprio ritmo; não existe fila de frames.
type VideoFeed struct {
	Frames      FrameSource
	Placeholder func() []byte
	FPS         int
	// OnFrame é chamado a cada parte escrita (métricas); opcional.
	OnFrame func(placeholder bool)
}

// Stream escreve partes até ctx acabar ou a escrita falhar (cliente saiu).
func (f VideoFeed) Stream(ctx context.Context, w io.Writer, room string) error {
	fps := f.FPS
	if fps <= 0 {
		fps = 10
	}
	limiter := rate.NewLimiter(rate.Limit(fps), 1)

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(videoBoundary); err != nil {
		return err
	}
	flusher, _ := w.(http.Flusher)

	var lastPlaceholder time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame := f.Frames.Frame(room)
		placeholder := frame == nil
		if placeholder {
			if f.Placeholder == nil || time.Since(lastPlaceholder) < placeholderEvery {
				if !sleepCtx(ctx, idleSleep) {
					return nil
				}
				continue
			}
			lastPlaceholder = time.Now()
			frame = f.Placeholder()
		} else if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Cache-Control":  {"no-store"},
			"Content-Length": {strconv.Itoa(len(frame))},
		})
		if err != nil {
			return err
		}
		if _, err := part.Write(frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		if f.OnFrame != nil {
			f.OnFrame(placeholder)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

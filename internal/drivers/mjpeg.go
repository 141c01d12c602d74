// internal/drivers/mjpeg.go
package drivers

import (
	"context"
	"crypto/tls"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
)

func init() {
	RegisterDriver("mjpeg-http", 0, OpenMJPEG, "http", "https")
}

// mjpegSource lê multipart/x-mixed-replace direto da câmera (CGI de MJPEG).
type mjpegSource struct {
	cancel context.CancelFunc
	body   io.ReadCloser
	mr     *multipart.Reader

	closeOnce sync.Once
}

// Câmeras de rede interna costumam ter certificado próprio.
var mjpegClient = &http.Client{
	Timeout: 0,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	},
}

func OpenMJPEG(ctx context.Context, source string) (FrameSource, error) {
	ctx, cancel := context.WithCancel(ctx)

	// credenciais na URL (user:pass@host) viram Basic auth no net/http
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mjpeg request: %w", err)
	}

	resp, err := mjpegClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mjpeg connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("mjpeg status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	// Lê o cabeçalho Content-Type pra pegar o boundary
	ct := resp.Header.Get("Content-Type")
	mediatype, params, err := mime.ParseMediaType(ct)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("invalid Content-Type %q: %w", ct, err)
	}
	if !strings.HasPrefix(mediatype, "multipart/") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected media type: %s", mediatype)
	}

	// alguns firmwares mandam boundary="--xyz"
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("no boundary in Content-Type: %s", ct)
	}

	return &mjpegSource{
		cancel: cancel,
		body:   resp.Body,
		mr:     multipart.NewReader(resp.Body, boundary),
	}, nil
}

func (s *mjpegSource) Next() (image.Image, error) {
	for {
		part, err := s.mr.NextPart()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("stream ended")
			}
			return nil, fmt.Errorf("error reading part: %w", err)
		}

		pCT := part.Header.Get("Content-Type")
		if pCT != "" && !strings.HasPrefix(pCT, "image/") {
			// Outros tipos: apenas descarta
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxFrameBytes))
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading image part: %w", err)
		}
		return decodeJPEG(data)
	}
}

func (s *mjpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.body.Close()
	})
	return nil
}

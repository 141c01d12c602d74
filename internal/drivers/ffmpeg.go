// internal/drivers/ffmpeg.go
package drivers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

var ffmpegCommand atomic.Value

// SetFFmpegCommand troca o binário usado (default "ffmpeg").
func SetFFmpegCommand(cmd string) {
	if strings.TrimSpace(cmd) != "" {
		ffmpegCommand.Store(strings.TrimSpace(cmd))
	}
}

func ffmpegPath() string {
	if v, ok := ffmpegCommand.Load().(string); ok {
		return v
	}
	return "ffmpeg"
}

func init() {
	RegisterDriver("ffmpeg", 0, OpenFFmpeg, "rtsp", "rtsps", "rtmp", "srt", "udp", "file")
}

// ffmpegSource roda o ffmpeg transcodificando a origem para MJPEG no stdout.
type ffmpegSource struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *tailBuffer

	closeOnce sync.Once
	closed    atomic.Bool
}

func ffmpegArgs(source string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s := SchemeOf(source); s == "rtsp" || s == "rtsps" {
		args = append(args, "-rtsp_transport", "tcp")
	}
	if SchemeOf(source) == "file" {
		// arquivo local em tempo real, em loop
		args = append(args, "-re", "-stream_loop", "-1")
	}
	return append(args,
		"-i", source,
		"-an",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

func OpenFFmpeg(ctx context.Context, source string) (FrameSource, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath(), ffmpegArgs(source)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	tail := &tailBuffer{max: 2048}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegSource{
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, 256<<10),
		stderr: tail,
	}, nil
}

func (s *ffmpegSource) Next() (image.Image, error) {
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}
	data, err := readJPEG(s.out, maxFrameBytes)
	if err != nil {
		if s.closed.Load() {
			return nil, ErrSourceClosed
		}
		if msg := s.stderr.String(); msg != "" {
			return nil, fmt.Errorf("ffmpeg stream: %w (%s)", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg stream: %w", err)
	}
	return decodeJPEG(data)
}

// Close mata o processo; o pipe fecha e qualquer Next bloqueado retorna.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		go func() { _ = s.cmd.Wait() }()
	})
	return nil
}

// tailBuffer guarda só o fim do stderr do ffmpeg, para mensagens de erro.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

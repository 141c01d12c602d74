// internal/drivers/base.go
package drivers

import (
	"context"
	"image"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// FrameSource é uma conexão aberta com uma origem de vídeo.
type FrameSource interface {
	// Next bloqueia até o próximo frame. Depois de Close devolve erro.
	Next() (image.Image, error)
	// Close libera a conexão e desbloqueia um Next em andamento.
	// Pode ser chamado mais de uma vez.
	Close() error
}

// SourceFactory abre uma origem; o ctx vale para toda a vida da conexão.
type SourceFactory func(ctx context.Context, source string) (FrameSource, error)

type registration struct {
	name     string
	priority int
	factory  SourceFactory
}

var (
	registryMu sync.RWMutex
	// registry: esquema da URL -> drivers, maior prioridade primeiro
	registry = map[string][]registration{}
)

// RegisterDriver é chamado no init() de cada driver (ffmpeg, mjpeg, opencv).
func RegisterDriver(name string, priority int, f SourceFactory, schemes ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range schemes {
		s = normalize(s)
		regs := append(registry[s], registration{name: name, priority: priority, factory: f})
		sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority > regs[j].priority })
		registry[s] = regs
	}
}

// DriverFor devolve o nome do driver escolhido para a origem.
func DriverFor(source string) (string, error) {
	reg, err := lookup(source)
	if err != nil {
		return "", err
	}
	return reg.name, nil
}

// Open escolhe o driver pelo esquema da URL e abre a conexão.
func Open(ctx context.Context, source string) (FrameSource, error) {
	reg, err := lookup(source)
	if err != nil {
		return nil, err
	}
	return reg.factory(ctx, source)
}

func lookup(source string) (registration, error) {
	scheme := SchemeOf(source)

	registryMu.RLock()
	defer registryMu.RUnlock()
	regs := registry[scheme]
	if len(regs) == 0 {
		return registration{}, ErrDriverNotFound
	}
	return regs[0], nil
}

// SchemeOf devolve o esquema em minúsculas; caminho local vira "file".
func SchemeOf(source string) string {
	source = strings.TrimSpace(source)
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// len==1 cobre "C:\videos\..." no Windows
		return "file"
	}
	return normalize(u.Scheme)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

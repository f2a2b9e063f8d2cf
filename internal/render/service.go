package render

import (
	"context"

	"github.com/snarg/narrator/internal/script"
)

// Service loads a script file, renders it and exports the result.
type Service struct {
	renderer *Renderer
	exporter *Exporter
}

func NewService(renderer *Renderer, exporter *Exporter) *Service {
	return &Service{renderer: renderer, exporter: exporter}
}

// RenderFile renders the script at path. A render with clause failures is
// still exported; the failures are in the Outcome's Result.
func (s *Service) RenderFile(ctx context.Context, path string) (*Outcome, error) {
	sc, err := script.Load(path)
	if err != nil {
		return nil, err
	}
	return s.RenderScript(ctx, sc)
}

// RenderScript renders and exports an already loaded script.
func (s *Service) RenderScript(ctx context.Context, sc *script.Script) (*Outcome, error) {
	res, err := s.renderer.Render(ctx, sc)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	m, err := s.exporter.Export(ctx, res)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	return &Outcome{Result: res, Manifest: m}, nil
}

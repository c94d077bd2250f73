// Package viewport computes the render scale for a page from the space
// available to display it and the user's zoom multiplier.
package viewport

import (
	"math"
	"sync"

	"github.com/a3tai/mcp-pdf-layout/internal/layout/geometry"
)

const (
	// DefaultFitMargin reserves a visual margin around the fitted page.
	DefaultFitMargin = 0.9
	// DefaultFitCeiling caps the fit scale for tiny pages in large containers.
	DefaultFitCeiling = 2.0
	// DefaultFitFloor is the smallest fit scale used, even for tiny containers.
	DefaultFitFloor = 0.5

	DefaultZoom     = 1.0
	DefaultZoomStep = 0.25
	DefaultMinZoom  = 0.5
	DefaultMaxZoom  = 3.0

	// DefaultMinScale and DefaultMaxScale bound the combined render scale.
	DefaultMinScale = 0.5
	DefaultMaxScale = 3.0
)

// Size is a width/height pair. Page sizes are in points, container sizes in
// pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Config holds the scaling limits.
type Config struct {
	FitMargin  float64
	FitCeiling float64
	FitFloor   float64
	ZoomStep   float64
	MinZoom    float64
	MaxZoom    float64
	MinScale   float64
	MaxScale   float64
}

// DefaultConfig returns the standard scaling limits.
func DefaultConfig() Config {
	return Config{
		FitMargin:  DefaultFitMargin,
		FitCeiling: DefaultFitCeiling,
		FitFloor:   DefaultFitFloor,
		ZoomStep:   DefaultZoomStep,
		MinZoom:    DefaultMinZoom,
		MaxZoom:    DefaultMaxZoom,
		MinScale:   DefaultMinScale,
		MaxScale:   DefaultMaxScale,
	}
}

// Scaler tracks the user zoom multiplier and produces viewports.
type Scaler struct {
	mu   sync.RWMutex
	cfg  Config
	zoom float64
}

// NewScaler creates a scaler at the default zoom.
func NewScaler(cfg Config) *Scaler {
	if cfg.ZoomStep <= 0 {
		cfg.ZoomStep = DefaultZoomStep
	}
	if cfg.MinZoom <= 0 || cfg.MaxZoom < cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = DefaultMinZoom, DefaultMaxZoom
	}
	if cfg.MinScale <= 0 || cfg.MaxScale < cfg.MinScale {
		cfg.MinScale, cfg.MaxScale = DefaultMinScale, DefaultMaxScale
	}
	if cfg.FitMargin <= 0 {
		cfg.FitMargin = DefaultFitMargin
	}
	if cfg.FitCeiling <= 0 {
		cfg.FitCeiling = DefaultFitCeiling
	}
	if cfg.FitFloor <= 0 {
		cfg.FitFloor = DefaultFitFloor
	}
	return &Scaler{cfg: cfg, zoom: clamp(DefaultZoom, cfg.MinZoom, cfg.MaxZoom)}
}

// FitScale returns the scale at which a page fits inside the container.
func (s *Scaler) FitScale(page, container Size) float64 {
	if page.Width <= 0 || page.Height <= 0 {
		return s.cfg.FitFloor
	}
	fit := math.Min(container.Width*s.cfg.FitMargin/page.Width, container.Height*s.cfg.FitMargin/page.Height)
	fit = math.Min(fit, s.cfg.FitCeiling)
	if math.IsNaN(fit) || fit < s.cfg.FitFloor {
		fit = s.cfg.FitFloor
	}
	return fit
}

// Viewport computes the viewport for a page. It never mutates field state.
func (s *Scaler) Viewport(pageNumber int, page, container Size) geometry.Viewport {
	s.mu.RLock()
	zoom := s.zoom
	s.mu.RUnlock()

	fit := s.FitScale(page, container)
	scale := clamp(fit*zoom, s.cfg.MinScale, s.cfg.MaxScale)

	return geometry.Viewport{
		PageNumber:  pageNumber,
		FitScale:    fit,
		UserZoom:    zoom,
		Scale:       scale,
		PixelWidth:  page.Width * scale,
		PixelHeight: page.Height * scale,
	}
}

// Zoom returns the current user zoom multiplier.
func (s *Scaler) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// SetZoom sets the user zoom, clamped to the configured range, and returns
// the value actually applied.
func (s *Scaler) SetZoom(z float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsNaN(z) {
		z = DefaultZoom
	}
	s.zoom = clamp(z, s.cfg.MinZoom, s.cfg.MaxZoom)
	return s.zoom
}

// ZoomIn increases the zoom by one step.
func (s *Scaler) ZoomIn() float64 {
	return s.SetZoom(s.Zoom() + s.cfg.ZoomStep)
}

// ZoomOut decreases the zoom by one step.
func (s *Scaler) ZoomOut() float64 {
	return s.SetZoom(s.Zoom() - s.cfg.ZoomStep)
}

// ResetZoom returns to the default zoom.
func (s *Scaler) ResetZoom() float64 {
	return s.SetZoom(DefaultZoom)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

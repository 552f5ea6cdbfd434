package services

import (
	"errors"

	"github.com/othello-os/go-othello/internal/kernel"
)

// ErrNoDisplay indicates the system booted without a usable framebuffer.
var ErrNoDisplay = errors.New("no display surface")

// displayService implements the DisplayService interface
type displayService struct {
	fb *kernel.Framebuffer
}

// NewDisplayService wraps the boot framebuffer. A nil surface is allowed
// and makes every drawing operation report ErrNoDisplay.
func NewDisplayService(fb *kernel.Framebuffer) DisplayService {
	return &displayService{fb: fb}
}

// Info reports the active mode
func (s *displayService) Info() (DisplayInfo, bool) {
	if s.fb == nil {
		return DisplayInfo{}, false
	}
	desc := s.fb.Descriptor()
	return DisplayInfo{
		Width:        s.fb.Width(),
		Height:       s.fb.Height(),
		BitsPerPixel: int(desc.BitsPerPix),
		Pitch:        s.fb.Pitch(),
		Framebuffer:  s.fb.Base(),
	}, true
}

// Clear fills the whole surface with one color
func (s *displayService) Clear(color uint32) error {
	if s.fb == nil {
		return ErrNoDisplay
	}
	return s.fb.Clear(color)
}

// Fill fills a clipped rectangle
func (s *displayService) Fill(x, y, w, h int, color uint32) error {
	if s.fb == nil {
		return ErrNoDisplay
	}
	return s.fb.FillRect(x, y, w, h, color)
}

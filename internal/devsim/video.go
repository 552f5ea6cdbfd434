package devsim

import (
	"github.com/othello-os/go-othello/internal/types"
)

// Display models the firmware graphics output: a single active 32bpp linear
// framebuffer mode, answered to the loader's one-time query.
type Display struct {
	mode types.BootVideoInfo
}

// NewDisplay creates a display whose mode places the framebuffer at fbPhys
// with a packed pitch.
func NewDisplay(width, height uint16, fbPhys uint64) *Display {
	return &Display{
		mode: types.BootVideoInfo{
			Width:       width,
			Height:      height,
			BitsPerPix:  types.BootVideoBPP,
			FramebufPhy: fbPhys,
			Pitch:       uint16(int(width) * types.BootVideoBPP / 8),
		},
	}
}

// QueryMode returns the active mode.
func (d *Display) QueryMode() (types.BootVideoInfo, error) {
	return d.mode, nil
}

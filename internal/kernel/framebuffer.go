// Package kernel holds the boot-time core: the framebuffer surface, the
// trap table, and the glue that brings devices, filesystem and network up
// in the order the loader hand-off expects.
package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrMissingInfo indicates the boot page carried no framebuffer
	// address.
	ErrMissingInfo = errors.New("no framebuffer in boot info")

	// ErrInvalidPitch indicates a row stride too small for the declared
	// width and depth.
	ErrInvalidPitch = errors.New("framebuffer pitch smaller than row size")

	// ErrZeroDimensions indicates a degenerate mode descriptor.
	ErrZeroDimensions = errors.New("framebuffer has zero dimensions")
)

// Framebuffer is the linear display surface described by the boot page,
// drawn through physical memory writes. Out-of-range coordinates clip.
type Framebuffer struct {
	mem    interfaces.PhysicalMemoryWriter
	base   uint64
	width  int
	height int
	pitch  int
	bytes  int // per pixel
}

// NewFramebuffer validates the boot descriptor and returns a drawing
// surface over mem.
func NewFramebuffer(video types.BootVideoInfo, mem interfaces.PhysicalMemoryWriter) (*Framebuffer, error) {
	if mem == nil {
		return nil, fmt.Errorf("memory surface is required")
	}
	if video.FramebufPhy == 0 {
		return nil, ErrMissingInfo
	}
	if video.Width == 0 || video.Height == 0 || video.BitsPerPix == 0 {
		return nil, ErrZeroDimensions
	}
	rowBytes := int(video.Width) * int(video.BitsPerPix) / 8
	if int(video.Pitch) < rowBytes {
		return nil, fmt.Errorf("%w: pitch %d, row %d", ErrInvalidPitch, video.Pitch, rowBytes)
	}

	return &Framebuffer{
		mem:    mem,
		base:   video.FramebufPhy,
		width:  int(video.Width),
		height: int(video.Height),
		pitch:  int(video.Pitch),
		bytes:  int(video.BitsPerPix) / 8,
	}, nil
}

// Width returns the mode width in pixels.
func (fb *Framebuffer) Width() int { return fb.width }

// Height returns the mode height in pixels.
func (fb *Framebuffer) Height() int { return fb.height }

// Pitch returns the row stride in bytes.
func (fb *Framebuffer) Pitch() int { return fb.pitch }

// Base returns the physical address of the surface.
func (fb *Framebuffer) Base() uint64 { return fb.base }

// Descriptor re-encodes the surface as a boot video descriptor.
func (fb *Framebuffer) Descriptor() types.BootVideoInfo {
	return types.BootVideoInfo{
		Width:       uint16(fb.width),
		Height:      uint16(fb.height),
		BitsPerPix:  uint16(fb.bytes * 8),
		FramebufPhy: fb.base,
		Pitch:       uint16(fb.pitch),
	}
}

// Clear fills the whole surface with one color.
func (fb *Framebuffer) Clear(color uint32) error {
	return fb.FillRect(0, 0, fb.width, fb.height, color)
}

// SetPixel writes one pixel. Coordinates outside the surface are ignored.
func (fb *Framebuffer) SetPixel(x, y int, color uint32) error {
	if x < 0 || y < 0 || x >= fb.width || y >= fb.height {
		return nil
	}
	var px [4]byte
	binary.LittleEndian.PutUint32(px[:], color)
	addr := fb.base + uint64(y)*uint64(fb.pitch) + uint64(x)*uint64(fb.bytes)
	return fb.mem.WritePhys(addr, px[:fb.bytes])
}

// FillRect fills a rectangle, clipped to the surface.
func (fb *Framebuffer) FillRect(x, y, w, h int, color uint32) error {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	w = min(w, fb.width-x)
	h = min(h, fb.height-y)
	if w <= 0 || h <= 0 {
		return nil
	}

	var px [4]byte
	binary.LittleEndian.PutUint32(px[:], color)
	row := make([]byte, w*fb.bytes)
	for i := 0; i < w; i++ {
		copy(row[i*fb.bytes:], px[:fb.bytes])
	}

	for r := 0; r < h; r++ {
		addr := fb.base + uint64(y+r)*uint64(fb.pitch) + uint64(x)*uint64(fb.bytes)
		if err := fb.mem.WritePhys(addr, row); err != nil {
			return fmt.Errorf("framebuffer row %d: %w", y+r, err)
		}
	}
	return nil
}

// Blit copies packed pixel rows from src onto the surface at (x, y).
// srcStride is the source row length in bytes; rows that fall outside the
// surface or the source buffer are skipped.
func (fb *Framebuffer) Blit(x, y, w, h int, srcStride int, src []byte) error {
	rowLen := w * fb.bytes
	for r := 0; r < h; r++ {
		if y+r >= fb.height {
			break
		}
		srcOff := r * srcStride
		if srcOff+rowLen > len(src) {
			break
		}
		if x >= fb.width {
			continue
		}
		n := min(rowLen, (fb.width-x)*fb.bytes)
		addr := fb.base + uint64(y+r)*uint64(fb.pitch) + uint64(x)*uint64(fb.bytes)
		if err := fb.mem.WritePhys(addr, src[srcOff:srcOff+n]); err != nil {
			return fmt.Errorf("framebuffer row %d: %w", y+r, err)
		}
	}
	return nil
}

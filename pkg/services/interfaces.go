package services

import (
	"context"
)

// EntryInfo represents one directory entry
type EntryInfo struct {
	Name string
	Dir  bool
	Size int
}

// FilesystemInfo represents the state of the RAM tree and its backing log
type FilesystemInfo struct {
	Dirs  int
	Files int
	Bytes int

	// Log region state; zero values when the system booted without a
	// usable disk.
	Persistent      bool
	ReplayedRecords int
	HeadSector      uint32
	FreeSectors     uint32
}

// NetworkInfo represents the interface state and its address binding
type NetworkInfo struct {
	NICPresent bool
	MAC        [6]byte

	DHCPBound    bool
	IP           [4]byte
	Mask         [4]byte
	Gateway      [4]byte
	DNS          [4]byte
	LeaseSeconds uint32
}

// PingResult represents one answered ICMP echo
type PingResult struct {
	Seq       uint16
	TTL       uint8
	RTTCycles uint64
}

// FetchResult represents a decoded HTTP response
type FetchResult struct {
	Status      int
	ContentType string
	Body        []byte
}

// DisplayInfo represents the active framebuffer mode
type DisplayInfo struct {
	Width        int
	Height       int
	BitsPerPixel int
	Pitch        int
	Framebuffer  uint64
}

// FileService provides filesystem operations over the booted system.
// Mutations stay in RAM until Sync appends them to the disk log.
type FileService interface {
	// List returns the entries of a directory
	List(ctx context.Context, dirPath string) ([]EntryInfo, error)

	// Read returns a file's contents
	Read(ctx context.Context, filePath string) ([]byte, error)

	// Write creates or replaces a file, creating parent directories
	Write(ctx context.Context, filePath string, data []byte) error

	// MakeDir creates a directory chain
	MakeDir(ctx context.Context, dirPath string) error

	// Remove deletes a file or empty directory
	Remove(ctx context.Context, path string) error

	// Sync appends all pending mutations to the log and reports how many
	// records were written
	Sync(ctx context.Context) (int, error)

	// Info reports tree and log region statistics
	Info() FilesystemInfo
}

// NetworkService provides the client protocols over the booted stack.
// Operations block inside bounded poll loops; the context is consulted
// before each protocol step begins, not inside the loops.
type NetworkService interface {
	// Resolve turns a hostname into an IPv4 address
	Resolve(ctx context.Context, host string) ([4]byte, error)

	// Ping sends one ICMP echo request and waits for the reply
	Ping(ctx context.Context, host string, seq uint16) (PingResult, error)

	// Fetch issues an HTTP GET, following redirects
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)

	// AcquireAddress leases an IPv4 binding over DHCP
	AcquireAddress(ctx context.Context) error

	// Info reports the interface state
	Info() NetworkInfo
}

// DisplayService provides drawing operations on the boot framebuffer
type DisplayService interface {
	// Info reports the active mode; ok is false when the system booted
	// without a usable display
	Info() (DisplayInfo, bool)

	// Clear fills the whole surface with one color
	Clear(color uint32) error

	// Fill fills a clipped rectangle
	Fill(x, y, w, h int, color uint32) error
}

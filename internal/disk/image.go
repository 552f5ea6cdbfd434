package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrBadImage indicates a file without a valid image header.
	ErrBadImage = errors.New("not a disk image")

	// ErrImageVersion indicates an image created by a newer layout.
	ErrImageVersion = errors.New("unsupported disk image version")

	// ErrOutOfRange indicates a sector access beyond the image payload.
	ErrOutOfRange = errors.New("sector out of range")
)

const imageModelNumber = "GO-OTHELLO VIRT DISK"

// ImageDevice provides sector-addressed access to the payload of a disk
// image file. The first file sector holds the image header; the emulated
// drive sees only the payload behind it.
type ImageDevice struct {
	file             *os.File
	header           types.DiskImageHeader
	readOnly         bool
	sectorCache      map[uint32][]byte
	cacheMutex       sync.RWMutex
	maxCacheSize     int64
	currentCacheSize int64
	stats            *ImageStatistics
}

// ImageStatistics tracks image access statistics
type ImageStatistics struct {
	sectorsRead    int64
	sectorsWritten int64
	bytesRead      int64
	bytesWritten   int64
	cacheHits      int64
	cacheMisses    int64
	mu             sync.RWMutex
}

// DiskConfig holds configuration for disk image handling
type DiskConfig struct {
	CacheEnabled   bool   `mapstructure:"cache_enabled"`
	CacheSize      int    `mapstructure:"cache_size"`
	DefaultSectors uint64 `mapstructure:"default_sectors"`
	DataPath       string `mapstructure:"data_path"`
}

// LoadDiskConfig loads disk configuration using Viper
func LoadDiskConfig() (*DiskConfig, error) {
	v := viper.New()
	v.SetConfigName("othello-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.othello")
	v.AddConfigPath("/etc/othello")

	// Set defaults
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_size", 16)
	v.SetDefault("default_sectors", uint64(types.DiskImageDefaultSectors))
	v.SetDefault("data_path", ".")

	// Allow environment variables
	v.SetEnvPrefix("OTHELLO")
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config DiskConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// DefaultDiskConfig returns the configuration used when no file or
// environment overrides exist.
func DefaultDiskConfig() *DiskConfig {
	return &DiskConfig{
		CacheEnabled:   true,
		CacheSize:      16,
		DefaultSectors: types.DiskImageDefaultSectors,
		DataPath:       ".",
	}
}

// CreateImage creates a disk image file with a fresh header, a generated
// serial number and a zeroed payload of the given sector count.
func CreateImage(path string, payloadSectors uint64, config *DiskConfig) (*ImageDevice, error) {
	if payloadSectors == 0 {
		payloadSectors = config.DefaultSectors
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk image: %w", err)
	}

	header := types.DiskImageHeader{
		Magic:          types.DiskImageMagic,
		Version:        types.DiskImageVersion,
		PayloadSectors: payloadSectors,
		Serial:         generateSerial(),
	}
	if _, err := file.WriteAt(encodeImageHeader(header), 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write image header: %w", err)
	}

	// Sparse payload: size the file without writing zeros.
	totalBytes := int64(types.DiskImageHeaderSectors+payloadSectors) * types.AtaSectorSize
	if err := file.Truncate(totalBytes); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to size disk image: %w", err)
	}

	return newImageDevice(file, header, config, false), nil
}

// OpenImage opens an existing disk image file and validates its header.
func OpenImage(path string, config *DiskConfig) (*ImageDevice, error) {
	return openImage(path, config, false)
}

// OpenImageReadOnly opens an image for inspection; writes are rejected.
func OpenImageReadOnly(path string, config *DiskConfig) (*ImageDevice, error) {
	return openImage(path, config, true)
}

func openImage(path string, config *DiskConfig, readOnly bool) (*ImageDevice, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}

	headerSector := make([]byte, types.AtaSectorSize)
	if _, err := file.ReadAt(headerSector, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	header, err := parseImageHeader(headerSector)
	if err != nil {
		file.Close()
		return nil, err
	}

	want := int64(types.DiskImageHeaderSectors+header.PayloadSectors) * types.AtaSectorSize
	if info, serr := file.Stat(); serr == nil && info.Size() < want {
		log.Printf("Warning: image file is %d bytes but the header declares %d, reads near the end will fail", info.Size(), want)
	}

	return newImageDevice(file, header, config, readOnly), nil
}

func newImageDevice(file *os.File, header types.DiskImageHeader, config *DiskConfig, readOnly bool) *ImageDevice {
	device := &ImageDevice{
		file:     file,
		header:   header,
		readOnly: readOnly,
		stats:    &ImageStatistics{},
	}
	if config.CacheEnabled {
		device.sectorCache = make(map[uint32][]byte)
		device.maxCacheSize = int64(config.CacheSize) * 1024 * 1024
	}
	return device
}

// ReadSector copies one payload sector into buf.
func (d *ImageDevice) ReadSector(lba uint32, buf []byte) error {
	if uint64(lba) >= d.header.PayloadSectors {
		return fmt.Errorf("%w: lba %d of %d", ErrOutOfRange, lba, d.header.PayloadSectors)
	}
	if len(buf) < types.AtaSectorSize {
		return fmt.Errorf("buffer of %d bytes cannot hold a sector", len(buf))
	}

	if d.sectorCache != nil {
		d.cacheMutex.RLock()
		cached, exists := d.sectorCache[lba]
		if exists {
			copy(buf, cached)
		}
		d.cacheMutex.RUnlock()
		if exists {
			d.stats.mu.Lock()
			d.stats.cacheHits++
			d.stats.mu.Unlock()
			return nil
		}
	}

	if _, err := d.file.ReadAt(buf[:types.AtaSectorSize], d.payloadOffset(lba)); err != nil {
		return fmt.Errorf("failed to read sector %d: %w", lba, err)
	}

	d.stats.mu.Lock()
	d.stats.sectorsRead++
	d.stats.bytesRead += types.AtaSectorSize
	d.stats.cacheMisses++
	d.stats.mu.Unlock()

	d.cacheSector(lba, buf[:types.AtaSectorSize])
	return nil
}

// WriteSector writes one payload sector. Writes go straight to the file and
// refresh the cache, so a crash never loses acknowledged sectors.
func (d *ImageDevice) WriteSector(lba uint32, buf []byte) error {
	if d.readOnly {
		return fmt.Errorf("disk image is read-only")
	}
	if uint64(lba) >= d.header.PayloadSectors {
		return fmt.Errorf("%w: lba %d of %d", ErrOutOfRange, lba, d.header.PayloadSectors)
	}
	if len(buf) < types.AtaSectorSize {
		return fmt.Errorf("buffer of %d bytes cannot fill a sector", len(buf))
	}

	if _, err := d.file.WriteAt(buf[:types.AtaSectorSize], d.payloadOffset(lba)); err != nil {
		return fmt.Errorf("failed to write sector %d: %w", lba, err)
	}

	d.stats.mu.Lock()
	d.stats.sectorsWritten++
	d.stats.bytesWritten += types.AtaSectorSize
	d.stats.mu.Unlock()

	d.cacheSector(lba, buf[:types.AtaSectorSize])
	return nil
}

func (d *ImageDevice) cacheSector(lba uint32, sector []byte) {
	if d.sectorCache == nil {
		return
	}
	d.cacheMutex.Lock()
	defer d.cacheMutex.Unlock()
	if _, exists := d.sectorCache[lba]; !exists {
		if d.currentCacheSize+types.AtaSectorSize > d.maxCacheSize {
			return
		}
		d.currentCacheSize += types.AtaSectorSize
		d.sectorCache[lba] = make([]byte, types.AtaSectorSize)
	}
	copy(d.sectorCache[lba], sector)
}

// SectorSize returns the sector size in bytes.
func (d *ImageDevice) SectorSize() int {
	return types.AtaSectorSize
}

// TotalSectors returns the payload size visible to the emulated drive.
func (d *ImageDevice) TotalSectors() uint64 {
	return d.header.PayloadSectors
}

// SerialNumber returns the serial generated at image creation.
func (d *ImageDevice) SerialNumber() string {
	return d.header.Serial
}

// ModelNumber returns the emulated drive model string.
func (d *ImageDevice) ModelNumber() string {
	return imageModelNumber
}

// Close closes the image file.
func (d *ImageDevice) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// GetStats returns current image access statistics
func (d *ImageDevice) GetStats() (sectorsRead, sectorsWritten, cacheHits, cacheMisses int64) {
	d.stats.mu.RLock()
	defer d.stats.mu.RUnlock()
	return d.stats.sectorsRead, d.stats.sectorsWritten, d.stats.cacheHits, d.stats.cacheMisses
}

// CacheHitRate returns the cache hit rate as a percentage
func (d *ImageDevice) CacheHitRate() float64 {
	d.stats.mu.RLock()
	defer d.stats.mu.RUnlock()
	total := d.stats.cacheHits + d.stats.cacheMisses
	if total == 0 {
		return 0.0
	}
	return float64(d.stats.cacheHits) / float64(total) * 100.0
}

// ClearCache clears the sector cache
func (d *ImageDevice) ClearCache() {
	if d.sectorCache == nil {
		return
	}
	d.cacheMutex.Lock()
	defer d.cacheMutex.Unlock()
	d.sectorCache = make(map[uint32][]byte)
	d.currentCacheSize = 0
}

// PrintStats prints detailed statistics about image access
func (d *ImageDevice) PrintStats() {
	d.stats.mu.RLock()
	defer d.stats.mu.RUnlock()

	fmt.Println("=== Disk Image Statistics ===")
	fmt.Printf("Serial: %s\n", d.header.Serial)
	fmt.Printf("Payload: %d sectors (%d MB)\n", d.header.PayloadSectors,
		d.header.PayloadSectors*types.AtaSectorSize/(1024*1024))
	fmt.Printf("Sectors read: %d (%d bytes)\n", d.stats.sectorsRead, d.stats.bytesRead)
	fmt.Printf("Sectors written: %d (%d bytes)\n", d.stats.sectorsWritten, d.stats.bytesWritten)
	fmt.Printf("Cache hits: %d\n", d.stats.cacheHits)
	fmt.Printf("Cache misses: %d\n", d.stats.cacheMisses)
	total := d.stats.cacheHits + d.stats.cacheMisses
	if total > 0 {
		fmt.Printf("Hit rate: %.2f%%\n", float64(d.stats.cacheHits)/float64(total)*100.0)
	}
	fmt.Printf("Cache size: %d / %d bytes\n", d.currentCacheSize, d.maxCacheSize)
}

// GetImagePath returns a path inside the configured data directory.
func GetImagePath(filename string, config *DiskConfig) string {
	return filepath.Join(config.DataPath, filename)
}

func (d *ImageDevice) payloadOffset(lba uint32) int64 {
	return int64(types.DiskImageHeaderSectors+uint64(lba)) * types.AtaSectorSize
}

// encodeImageHeader serializes the header into a full sector:
// u32 magic, u16 version, u16 reserved, u64 payload sectors, then the
// fixed-width ASCII serial.
func encodeImageHeader(header types.DiskImageHeader) []byte {
	sector := make([]byte, types.AtaSectorSize)
	le := binary.LittleEndian

	le.PutUint32(sector[0:4], header.Magic)
	le.PutUint16(sector[4:6], header.Version)
	le.PutUint64(sector[8:16], header.PayloadSectors)

	serial := header.Serial
	if len(serial) > types.DiskImageSerialLen {
		serial = serial[:types.DiskImageSerialLen]
	}
	copy(sector[16:16+types.DiskImageSerialLen], serial)
	return sector
}

func parseImageHeader(sector []byte) (types.DiskImageHeader, error) {
	var header types.DiskImageHeader
	if len(sector) < 16+types.DiskImageSerialLen {
		return header, fmt.Errorf("%w: short header", ErrBadImage)
	}
	le := binary.LittleEndian

	header.Magic = le.Uint32(sector[0:4])
	if header.Magic != types.DiskImageMagic {
		return header, fmt.Errorf("%w: magic 0x%08X", ErrBadImage, header.Magic)
	}
	header.Version = le.Uint16(sector[4:6])
	if header.Version != types.DiskImageVersion {
		return header, fmt.Errorf("%w: version %d", ErrImageVersion, header.Version)
	}
	header.PayloadSectors = le.Uint64(sector[8:16])
	header.Serial = strings.TrimRight(string(sector[16:16+types.DiskImageSerialLen]), "\x00 ")
	return header, nil
}

// generateSerial derives a drive serial from a fresh UUID, truncated to the
// ATA serial field width.
func generateSerial() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return raw[:types.DiskImageSerialLen]
}

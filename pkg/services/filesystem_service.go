package services

import (
	"context"
	"path"

	"github.com/othello-os/go-othello/internal/ramfs"
	core "github.com/othello-os/go-othello/internal/services"
)

// fileService implements the FileService interface
type fileService struct {
	fs       *ramfs.RamFS
	persist  *core.PersistenceService
	replayed int
}

// NewFileService wraps the RAM tree and its log. A nil persist leaves the
// filesystem RAM-only: everything works except Sync.
func NewFileService(fs *ramfs.RamFS, persist *core.PersistenceService, replayed int) FileService {
	return &fileService{
		fs:       fs,
		persist:  persist,
		replayed: replayed,
	}
}

// List returns the entries of a directory
func (s *fileService) List(ctx context.Context, dirPath string) ([]EntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := s.fs.Ls(dirPath)
	if err != nil {
		return nil, err
	}

	entries := make([]EntryInfo, 0, len(names))
	for _, name := range names {
		full := path.Join(dirPath, name)
		entry := EntryInfo{Name: name, Dir: s.fs.IsDir(full)}
		if !entry.Dir {
			data, err := s.fs.ReadAll(full)
			if err != nil {
				return nil, err
			}
			entry.Size = len(data)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Read returns a file's contents
func (s *fileService) Read(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fs.ReadAll(filePath)
}

// Write creates or replaces a file, creating parent directories
func (s *fileService) Write(ctx context.Context, filePath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fs.WriteAll(filePath, data)
}

// MakeDir creates a directory chain
func (s *fileService) MakeDir(ctx context.Context, dirPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fs.MkdirP(dirPath)
}

// Remove deletes a file or empty directory
func (s *fileService) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fs.Rm(p)
}

// Sync appends all pending mutations to the log
func (s *fileService) Sync(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.persist == nil {
		return 0, core.ErrDisabled
	}
	return s.persist.Sync()
}

// Info reports tree and log region statistics
func (s *fileService) Info() FilesystemInfo {
	stats := s.fs.GetStats()
	info := FilesystemInfo{
		Dirs:  stats.Dirs,
		Files: stats.Files,
		Bytes: stats.Bytes,
	}
	if s.persist != nil && s.persist.Enabled() {
		info.Persistent = true
		info.ReplayedRecords = s.replayed
		info.HeadSector = s.persist.Head()
		info.FreeSectors = s.persist.FreeSectors()
	}
	return info
}

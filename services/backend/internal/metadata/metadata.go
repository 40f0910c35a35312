// Package metadata removes identifying EXIF/XMP fields from uploads before
// they are pinned to IPFS.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fields cleared on every upload, grouped the way they are reported back.
var strippedFields = []string{
	"GPSLatitude", "GPSLongitude", "GPSAltitude", "GPSLatitudeRef", "GPSLongitudeRef",
	"Artist", "Creator", "Author", "Copyright",
	"Make", "Model", "SerialNumber", "Software", "HostComputer",
}

var groups = []struct {
	name   string
	fields map[string]string
}{
	{"gps", map[string]string{"latitude": "GPSLatitude", "longitude": "GPSLongitude", "altitude": "GPSAltitude"}},
	{"camera", map[string]string{"make": "Make", "model": "Model", "serialNumber": "SerialNumber"}},
	{"author", map[string]string{"artist": "Artist", "creator": "Creator", "author": "Author", "copyright": "Copyright"}},
	{"software", map[string]string{"software": "Software", "hostComputer": "HostComputer"}},
	{"dates", map[string]string{"createDate": "CreateDate", "modifyDate": "ModifyDate", "dateTimeOriginal": "DateTimeOriginal"}},
}

// Removed maps group name to field name to the original value.
type Removed map[string]map[string]any

// Identifying picks the reported groups out of an exiftool field map.
func Identifying(fields map[string]any) Removed {
	removed := Removed{}
	for _, g := range groups {
		vals := map[string]any{}
		for key, field := range g.fields {
			vals[key] = fields[field]
		}
		removed[g.name] = vals
	}
	return removed
}

// Groups lists, in report order, the groups with at least one non-empty value.
func (r Removed) Groups() []string {
	out := []string{}
	for _, g := range groups {
		for _, v := range r[g.name] {
			if !isEmpty(v) {
				out = append(out, g.name)
				break
			}
		}
	}
	return out
}

type Result struct {
	Data               []byte
	Removed            Removed
	HadIdentifyingData bool
}

// Tool is the exiftool surface the stripper drives.
type Tool interface {
	ExtractMetadata(files ...string) []exiftool.FileMetadata
	WriteMetadata(fileMetadata []exiftool.FileMetadata)
	Close() error
}

type Stripper struct {
	tool   Tool
	tmpDir string
	logger *zap.Logger
	mu     sync.Mutex
}

// New starts a stay-open exiftool process. binaryPath may be empty to use
// exiftool from PATH.
func New(binaryPath string, logger *zap.Logger) (*Stripper, error) {
	var opts []func(*exiftool.Exiftool) error
	if binaryPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binaryPath))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return NewWithTool(et, logger), nil
}

func NewWithTool(tool Tool, logger *zap.Logger) *Stripper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stripper{tool: tool, tmpDir: os.TempDir(), logger: logger}
}

func (s *Stripper) Close() error { return s.tool.Close() }

func (s *Stripper) workFile(data []byte, fileName string) (string, func(), error) {
	dir, err := os.MkdirTemp(s.tmpDir, "chainproof-"+uuid.NewString())
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to clean up temp dir", zap.Error(err))
		}
	}
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// Metadata returns every field exiftool reports for the file.
func (s *Stripper) Metadata(ctx context.Context, data []byte, fileName string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, cleanup, err := s.workFile(data, fileName)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	s.mu.Lock()
	defer s.mu.Unlock()
	fms := s.tool.ExtractMetadata(path)
	if len(fms) != 1 {
		return nil, errors.New("exiftool returned no metadata")
	}
	if fms[0].Err != nil {
		return nil, fmt.Errorf("read metadata: %w", fms[0].Err)
	}
	return fms[0].Fields, nil
}

// Strip clears the identifying fields and returns the rewritten bytes along
// with the values that were present.
func (s *Stripper) Strip(ctx context.Context, data []byte, fileName string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, cleanup, err := s.workFile(data, fileName)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	s.mu.Lock()
	fms := s.tool.ExtractMetadata(path)
	if len(fms) != 1 {
		s.mu.Unlock()
		return nil, errors.New("exiftool returned no metadata")
	}
	orig := fms[0]
	if orig.Err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("read metadata: %w", orig.Err)
	}

	removed := Identifying(orig.Fields)

	write := exiftool.EmptyFileMetadata()
	write.File = path
	for _, f := range strippedFields {
		write.Clear(f)
	}
	batch := []exiftool.FileMetadata{write}
	s.tool.WriteMetadata(batch)
	s.mu.Unlock()
	if batch[0].Err != nil {
		return nil, fmt.Errorf("strip metadata: %w", batch[0].Err)
	}

	stripped, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	had := false
	for _, f := range []string{"GPSLatitude", "Artist", "Make", "Author"} {
		if !isEmpty(orig.Fields[f]) {
			had = true
		}
	}
	hadGPS := !isEmpty(orig.Fields["GPSLatitude"]) || !isEmpty(orig.Fields["GPSLongitude"])
	s.logger.Info("metadata stripped",
		zap.Int("removed_groups", len(removed.Groups())),
		zap.Bool("had_gps", hadGPS),
	)
	return &Result{Data: stripped, Removed: removed, HadIdentifyingData: had}, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

package camera

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// JPEGWriter implements domain.SnapshotWriter with cv::imwrite. The format
// follows the file extension.
type JPEGWriter struct{}

// NewJPEGWriter creates a snapshot writer.
func NewJPEGWriter() *JPEGWriter {
	return &JPEGWriter{}
}

// Save writes frame to path, creating the directory if needed.
func (w *JPEGWriter) Save(frame *domain.Frame, path string) error {
	if frame.Empty() {
		return fmt.Errorf("empty frame")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	m, err := frameToMat(frame)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer m.Close()

	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("imwrite %s failed", path)
	}
	return nil
}

// Ensure JPEGWriter implements domain.SnapshotWriter.
var _ domain.SnapshotWriter = (*JPEGWriter)(nil)

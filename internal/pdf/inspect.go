package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	pdferrors "github.com/a3tai/exam-dataset/internal/pdf/errors"
)

// Info is the structural summary of a PDF file.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	PageCount int       `json:"page_count"`
	Encrypted bool      `json:"encrypted"`
	PageSizes []PageDim `json:"page_sizes"`
	SHA256    string    `json:"sha256"`
}

// PageDim is a page size in points.
type PageDim struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Inspector validates PDFs before they are processed.
type Inspector struct {
	maxFileSize int64
}

// NewInspector creates an inspector that rejects files above maxFileSize
// bytes. A non-positive limit disables the size check.
func NewInspector(maxFileSize int64) *Inspector {
	return &Inspector{maxFileSize: maxFileSize}
}

// Inspect checks that path is a readable, unencrypted PDF and reports its
// page count and page sizes. Failures are classified as unreadable sources.
func (in *Inspector) Inspect(path string) (*Info, error) {
	unreadable := func(msg string, err error) error {
		if err == nil {
			return pdferrors.New(pdferrors.KindUnreadableSource, msg).WithFile(path)
		}
		return pdferrors.Wrap(pdferrors.KindUnreadableSource, msg, err).WithFile(path)
	}

	if path == "" {
		return nil, pdferrors.New(pdferrors.KindInvalidInput, "path cannot be empty")
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, unreadable("cannot access file", err)
	}
	if fileInfo.IsDir() {
		return nil, unreadable("path is a directory, not a file", nil)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return nil, unreadable("file is not a PDF", nil)
	}
	if fileInfo.Size() == 0 {
		return nil, unreadable("file is empty", nil)
	}
	if in.maxFileSize > 0 && fileInfo.Size() > in.maxFileSize {
		return nil, unreadable(fmt.Sprintf("file too large: %d bytes (max: %d bytes)", fileInfo.Size(), in.maxFileSize), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, unreadable("failed to open PDF file", err)
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(file, conf)
	if err != nil {
		return nil, unreadable("failed to read PDF context", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, unreadable("failed to ensure page count", err)
	}
	if ctx.Encrypt != nil {
		return nil, unreadable("PDF is encrypted", nil)
	}

	info := &Info{
		Path:      path,
		Size:      fileInfo.Size(),
		PageCount: ctx.PageCount,
	}
	if dims, err := ctx.PageDims(); err == nil {
		for _, d := range dims {
			info.PageSizes = append(info.PageSizes, PageDim{Width: d.Width, Height: d.Height})
		}
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, unreadable("failed to rewind PDF file", err)
	}
	sum, err := hashReader(file)
	if err != nil {
		return nil, unreadable("failed to hash PDF file", err)
	}
	info.SHA256 = sum
	return info, nil
}

// FileSHA256 returns the hex SHA-256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashReader(f)
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

//go:build !ocr

package ocr

// NewTesseract reports that Tesseract support is not compiled in.
func NewTesseract(language string) (Engine, error) {
	return nil, ErrOCRNotEnabled
}

package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

type FileValidator struct {
	allowedExt  map[string]bool
	allowedMime map[string]bool
	maxSize     int64
}

func NewFileValidator(maxSizeMB int, exts, mimes []string) *FileValidator {
	allowedExt := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if ext = strings.TrimSpace(strings.ToLower(ext)); ext != "" {
			allowedExt[ext] = true
		}
	}
	allowedMime := make(map[string]bool, len(mimes))
	for _, m := range mimes {
		if m = strings.TrimSpace(strings.ToLower(m)); m != "" {
			allowedMime[m] = true
		}
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &FileValidator{
		allowedExt:  allowedExt,
		allowedMime: allowedMime,
		maxSize:     int64(maxSizeMB) << 20,
	}
}

// NewImageValidator accepts offer photos.
func NewImageValidator(maxSizeMB int) *FileValidator {
	return NewFileValidator(maxSizeMB,
		[]string{".jpg", ".jpeg", ".png", ".webp"},
		[]string{"image/jpeg", "image/png", "image/webp"},
	)
}

// NewPDFValidator accepts quotation documents.
func NewPDFValidator(maxSizeMB int) *FileValidator {
	return NewFileValidator(maxSizeMB, []string{".pdf"}, []string{"application/pdf"})
}

// ValidateFile checks size, extension and sniffed content type, returning the detected MIME type.
func (v *FileValidator) ValidateFile(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > v.maxSize {
		return "", fmt.Errorf("file too large (max %d MB)", v.maxSize>>20)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !v.allowedExt[ext] {
		return "", fmt.Errorf("invalid file extension %q", ext)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file header")
	}
	if n == 0 {
		return "", fmt.Errorf("file is empty")
	}

	detected := strings.ToLower(http.DetectContentType(buffer[:n]))
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = strings.TrimSpace(detected[:i])
	}
	if !v.allowedMime[detected] {
		return "", fmt.Errorf("invalid file type %q", detected)
	}

	return detected, nil
}

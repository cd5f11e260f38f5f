package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	MaxUploadSize      = 10 * 1024 * 1024 // 10MB
	MaxAttachmentCount = 5
)

var allowedExtensions = map[string][]byte{
	".pdf":  []byte("%PDF"),
	".png":  []byte("\x89PNG"),
	".jpg":  []byte("\xff\xd8\xff"),
	".jpeg": []byte("\xff\xd8\xff"),
	".doc":  []byte("\xd0\xcf\x11\xe0"),
	".docx": []byte("PK\x03\x04"),
	".txt":  nil,
}

// ValidateDocumentUpload checks size, extension and leading magic bytes.
func ValidateDocumentUpload(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > MaxUploadSize {
		return NewValidationError("file", "file size exceeds the maximum limit of 10MB")
	}
	if fileHeader.Size == 0 {
		return NewValidationError("file", "file is empty")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	magic, ok := allowedExtensions[ext]
	if !ok {
		return NewValidationError("file", "file type not allowed. Accepted formats: PDF, DOC, DOCX, TXT, JPG, PNG")
	}
	if magic == nil {
		return nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, magic) {
		return NewValidationError("file", fmt.Sprintf("invalid %s file content", strings.ToUpper(strings.TrimPrefix(ext, "."))))
	}
	return nil
}

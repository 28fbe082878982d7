package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	MaxEvidenceBytes = 5 * 1024 * 1024
	MaxAvatarBytes   = 2 * 1024 * 1024
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var imageExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "heic": true}

// ImageExt returns the lowercased extension of filename without the dot, or
// ErrUnsupportedImage.
func ImageExt(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !imageExts[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, filename)
	}
	return ext, nil
}

// ImageContentType is image/{ext}, with jpg mapped to jpeg.
func ImageContentType(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}

// Upload is an image read fully into memory and checked.
type Upload struct {
	Ext         string
	ContentType string
	Data        []byte
}

func (u *Upload) Reader() io.Reader { return bytes.NewReader(u.Data) }

// ReadImage opens an uploaded image, rejecting unsupported extensions and
// anything larger than limit bytes.
func ReadImage(fileHeader *multipart.FileHeader, limit int64) (*Upload, error) {
	ext, err := ImageExt(fileHeader.Filename)
	if err != nil {
		return nil, err
	}
	if fileHeader.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, fileHeader.Size, limit)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadImageFrom(file, ext, limit)
}

// ReadImageFrom reads at most limit bytes from r.
func ReadImageFrom(r io.Reader, ext string, limit int64) (*Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, limit)
	}
	return &Upload{Ext: ext, ContentType: ImageContentType(ext), Data: data}, nil
}

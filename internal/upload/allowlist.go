package upload

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrUnsupportedExtension = errors.New("unsupported file type")

// DefaultExtensions are the MRI formats accepted for upload.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "dcm"}

// AllowList is a set of permitted file extensions, stored lower case and
// without the leading dot.
type AllowList map[string]struct{}

func NewAllowList(exts []string) AllowList {
	a := make(AllowList, len(exts))
	for _, ext := range exts {
		a[normalize(ext)] = struct{}{}
	}
	return a
}

// Extension returns the normalized extension of filename, the text after
// the last dot.
func Extension(filename string) string {
	return normalize(filepath.Ext(filename))
}

// Check returns the extension of filename or ErrUnsupportedExtension.
func (a AllowList) Check(filename string) (string, error) {
	ext := Extension(filename)
	if _, ok := a[ext]; !ok || ext == "" {
		return "", ErrUnsupportedExtension
	}
	return ext, nil
}

func normalize(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Package upload validates files and stores them in an S3-compatible bucket.
package upload

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxFileSize is 5 MiB
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

var (
	ErrFileTooLarge   = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
	ErrEmptyFile      = errors.New("file is empty")
)

// DefaultAllowedTypes accepts images, PDFs and text
var DefaultAllowedTypes = []string{"image/*", "application/pdf", "text/*"}

// Policy bounds what may be uploaded
type Policy struct {
	MaxFileSize  int64    `yaml:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types"` // exact MIME types or "type/*"
}

// DefaultPolicy returns the 5 MiB image, PDF and text policy
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSize:  DefaultMaxFileSize,
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
	}
}

// withDefaults fills unset fields from DefaultPolicy
func (p Policy) withDefaults() Policy {
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = DefaultMaxFileSize
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	return p
}

// FileInfo describes a file offered for upload
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Validate checks the file against the policy, size first
func Validate(file FileInfo, policy Policy) error {
	policy = policy.withDefaults()

	if file.Size <= 0 {
		return ErrEmptyFile
	}
	if file.Size > policy.MaxFileSize {
		return fmt.Errorf("%w: file size must be less than %dMB", ErrFileTooLarge, policy.MaxFileSize/1024/1024)
	}
	if !typeAllowed(file.ContentType, policy.AllowedTypes) {
		return fmt.Errorf("%w: supported types: %s", ErrTypeNotAllowed, strings.Join(policy.AllowedTypes, ", "))
	}
	return nil
}

// typeAllowed matches a MIME type, parameters ignored, against the allow list
func typeAllowed(contentType string, allowed []string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mediaType == "" {
		return false
	}

	for _, pattern := range allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if base, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mediaType, base+"/") {
				return true
			}
			continue
		}
		if mediaType == pattern {
			return true
		}
	}
	return false
}

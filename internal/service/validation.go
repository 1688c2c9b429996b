package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrPhotosTooBig  = errors.New("photos too large")
	ErrNotAnImage    = errors.New("invalid image")
)

// sniffLen is how many leading bytes are inspected for content detection.
const sniffLen = 512

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Limits bounds what a single submission may carry.
type Limits struct {
	MaxFiles      int
	MaxFileBytes  int64
	MaxTotalBytes int64
}

// Photo is one file part of the submission form.
// Filename and ContentType come from the client and are not trusted.
type Photo struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// LooksLikeEmail reports whether s has a local@domain.tld shape.
func LooksLikeEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ValidateFields checks the required text fields. Inputs are expected to be trimmed.
func ValidateFields(name, email, details string) error {
	if name == "" || email == "" || details == "" {
		return ErrMissingFields
	}
	if !LooksLikeEmail(email) {
		return ErrInvalidEmail
	}
	return nil
}

// IsImage reports whether the declared content type is an image type.
func IsImage(p Photo) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.ContentType)), "image/")
}

// SelectPhotos keeps image parts only, caps them at MaxFiles in upload order, and rejects
// the whole set when one retained file or their sum exceeds the limits.
// Non-image parts and the parts beyond MaxFiles are dropped without error.
func SelectPhotos(photos []Photo, limits Limits) ([]Photo, error) {
	kept := make([]Photo, 0, len(photos))
	for _, p := range photos {
		if !IsImage(p) {
			continue
		}
		if limits.MaxFiles > 0 && len(kept) == limits.MaxFiles {
			break
		}
		kept = append(kept, p)
	}

	var total int64
	for _, p := range kept {
		if limits.MaxFileBytes > 0 && p.Size > limits.MaxFileBytes {
			return nil, ErrPhotosTooBig
		}
		total += p.Size
	}
	if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
		return nil, ErrPhotosTooBig
	}
	return kept, nil
}

// SniffPhotos reads the first bytes of each photo and rejects the set when one of them is
// recognisably something other than an image. Formats the detector does not know
// (reported as application/octet-stream, e.g. HEIC) are let through.
func SniffPhotos(photos []Photo) error {
	for i, p := range photos {
		detected, err := sniff(p)
		if err != nil {
			return fmt.Errorf("sniff photo %d: %w", i+1, err)
		}
		if !strings.HasPrefix(detected, "image/") && detected != "application/octet-stream" {
			return fmt.Errorf("%w: %q looks like %s", ErrNotAnImage, p.Filename, detected)
		}
	}
	return nil
}

func sniff(p Photo) (string, error) {
	if p.Open == nil {
		return "", errors.New("photo has no content")
	}
	f, err := p.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

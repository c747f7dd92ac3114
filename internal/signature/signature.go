// Package signature checks uploaded image content against the file type its
// name claims, using leading "magic number" byte sequences.
package signature

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported image extension")
	ErrContentMismatch      = errors.New("file content does not match its extension")
)

var jpegSignatures = [][]byte{
	{0xFF, 0xD8, 0xFF, 0xE0},
	{0xFF, 0xD8, 0xFF, 0xE2},
	{0xFF, 0xD8, 0xFF, 0xE3},
}

// imageSignatures maps an extension to the byte prefixes accepted for it.
var imageSignatures = map[string][][]byte{
	"jpeg": jpegSignatures,
	"jpg":  jpegSignatures,
	"png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
}

// Extension returns the part of name after the last dot, case preserved.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// Supported reports whether ext has a signature table entry.
func Supported(ext string) bool {
	_, ok := imageSignatures[ext]
	return ok
}

// Validate reads the leading bytes of r once and confirms they start with one
// of the signatures registered for the extension of fileName. It returns the
// validated extension and the header bytes consumed from r, which callers must
// write back in front of the remaining stream when persisting it.
//
// Validate never guesses the real type of a mislabelled file.
func Validate(fileName string, r io.Reader) (string, []byte, error) {
	ext := Extension(fileName)
	sigs, ok := imageSignatures[ext]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}

	n := 0
	for _, s := range sigs {
		if len(s) > n {
			n = len(s)
		}
	}

	header := make([]byte, n)
	read, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read header: %w", err)
	}
	header = header[:read]

	for _, s := range sigs {
		if bytes.HasPrefix(header, s) {
			return ext, header, nil
		}
	}
	return "", header, fmt.Errorf("%w: claims %q", ErrContentMismatch, ext)
}

// PosterPath is the storage-relative path of a media's poster.
func PosterPath(mediaID, ext string) string {
	return fmt.Sprintf("images/posters/poster-%s.%s", mediaID, ext)
}

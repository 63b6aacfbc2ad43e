package converter

import (
	"bytes"
	"io"
)

type FileType string

const (
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
	FileTypeBMP  FileType = "bmp"
	FileTypeTIFF FileType = "tiff"
)

var magicBytes = []struct {
	fileType  FileType
	signature []byte
}{
	{FileTypePNG, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{FileTypeJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{FileTypeGIF, []byte{0x47, 0x49, 0x46, 0x38}},
	{FileTypeBMP, []byte{0x42, 0x4D}},
	{FileTypeTIFF, []byte{0x49, 0x49, 0x2A, 0x00}},
	{FileTypeTIFF, []byte{0x4D, 0x4D, 0x00, 0x2A}},
}

// DetectFileType sniffs the leading bytes of r and rewinds it.
func DetectFileType(r io.ReadSeeker) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(r, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	for _, m := range magicBytes {
		if bytes.HasPrefix(buffer[:n], m.signature) {
			return m.fileType, nil
		}
	}

	return "", ErrInvalidFileType
}

package converter

import "errors"

var (
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrDecode            = errors.New("decode image")
	ErrResize            = errors.New("resize image")
	ErrEncode            = errors.New("encode image")
	ErrWrite             = errors.New("write image")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrUnsupportedFilter = errors.New("unsupported resample filter")
)

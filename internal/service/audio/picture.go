package audio

import "bytes"

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"

	frontCoverDescription = "Front Cover"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47}

// Picture is raw cover art plus its MIME type.
type Picture struct {
	MIME string
	Data []byte
}

// NewPicture wraps image bytes, sniffing the MIME type from the signature.
func NewPicture(data []byte) *Picture {
	if len(data) == 0 {
		return nil
	}
	return &Picture{MIME: SniffImageMIME(data), Data: data}
}

// SniffImageMIME returns image/png for the PNG signature and image/jpeg for
// anything else.
func SniffImageMIME(data []byte) string {
	if bytes.HasPrefix(data, pngSignature) {
		return mimePNG
	}
	return mimeJPEG
}

// qr renders a connection artifact as a scannable image. The core only
// hands a string across this boundary and gets an image back; nothing
// else depends on QR internals.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image edge in pixels.
const DefaultSize = 512

// PNG renders the artifact as a PNG image of size x size pixels.
func PNG(artifact string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(artifact, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// DataURL renders the artifact as a data URL suitable for an img tag.
func DataURL(artifact string) (string, error) {
	png, err := PNG(artifact, DefaultSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// WriteFile renders the artifact and writes the PNG to path.
func WriteFile(artifact string, size int, path string) error {
	if size <= 0 {
		size = DefaultSize
	}
	if err := qrcode.WriteFile(artifact, qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("failed to write qr code: %w", err)
	}
	return nil
}

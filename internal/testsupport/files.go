package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Payload returns size bytes of a repeating pattern. A size <= 0 returns a
// single byte.
func Payload(size int) []byte {
	if size <= 0 {
		size = 1
	}
	return bytes.Repeat([]byte{0x42}, size)
}

// JPEGPayload returns bytes that content sniffers classify as a JPEG image.
func JPEGPayload(size int) []byte {
	header := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	if size < len(header) {
		size = len(header)
	}
	out := make([]byte, size)
	copy(out, header)
	return out
}

// MP4Payload returns bytes that content sniffers classify as an MP4 video.
func MP4Payload(size int) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
	if size < len(header) {
		size = len(header)
	}
	out := make([]byte, size)
	copy(out, header)
	return out
}

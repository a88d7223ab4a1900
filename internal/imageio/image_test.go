package imageio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// withDimensions rewrites the IHDR width and height of a PNG and fixes up
// the chunk CRC, leaving the pixel data untouched.
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := bytes.Clone(data)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected first chunk %q", out[12:16])
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode_RejectsOversizedDimensions(t *testing.T) {
	raw := testPNG(t, 6, 4)

	tests := []struct {
		name    string
		w, h    uint32
		wantErr bool
	}{
		{"original", 6, 4, false},
		{"50000x50000", 50000, 50000, true},
		{"one very wide row", 40_000_001, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := withDimensions(t, raw, tt.w, tt.h)

			_, err := Decode(data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImage) {
					t.Errorf("Decode: expected ErrInvalidImage, got %v", err)
				}
				_, err = DecodeBase64(base64.StdEncoding.EncodeToString(data))
				if !errors.Is(err, ErrInvalidImage) {
					t.Errorf("DecodeBase64: expected ErrInvalidImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := testPNG(t, 6, 4)
	plain := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", plain, false},
		{"data url", "data:image/png;base64," + plain, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(raw), false},
		{"surrounding whitespace", "  " + plain + "\n", false},
		{"empty", "", true},
		{"not base64", "!!!", true},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world")), true},
		{"data url without comma", "data:image/png;base64", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeBase64(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImage) {
					t.Errorf("expected ErrInvalidImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.Bounds().Dx() != 6 || img.Bounds().Dy() != 4 {
				t.Errorf("bounds = %v, want 6x4", img.Bounds())
			}
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h, limit  int
		wantW, wantH int
	}{
		{"within bounds", 100, 50, 200, 100, 50},
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 200, 400, 100, 50, 100},
		{"no limit", 400, 200, 0, 400, 200},
		{"extreme aspect keeps one pixel", 1000, 1, 10, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := Fit(img, tt.limit).Bounds()
			if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
				t.Errorf("Fit() = %dx%d, want %dx%d", got.Dx(), got.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodeJPEG_RoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	data, err := EncodeJPEG(img, 90)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("output is not a JPEG")
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Bounds().Dx() != 8 {
		t.Errorf("width = %d, want 8", decoded.Bounds().Dx())
	}
}

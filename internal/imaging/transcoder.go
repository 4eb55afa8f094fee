package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	// Decoders for image.Decode
	_ "image/gif"

	"github.com/HugoSmits86/nativewebp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/tvecera/zivyobraz-kindle-proxy/pkg/models"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality matches the quality most image libraries save JPEG at by default
const DefaultJPEGQuality = 75

// ErrUnsupportedConversion is returned when a container cannot hold the target color mode
var ErrUnsupportedConversion = errors.New("color mode not supported by output format")

// DecodeError reports input bytes that are not a decodable raster image
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failure to write the converted image into the output format
type EncodeError struct {
	Format models.OutputFormat
	Mode   models.ColorMode
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s image as %s: %v", e.Mode, e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Transcoder decodes upstream bitmaps and re-encodes them for a device.
// It holds no per-request state and is safe for concurrent use.
type Transcoder struct {
	jpegQuality int
}

// NewTranscoder creates a transcoder with default encoder settings
func NewTranscoder() *Transcoder {
	return &Transcoder{jpegQuality: DefaultJPEGQuality}
}

// Transcode converts raw into the given color mode and output format.
// Output dimensions always equal input dimensions.
func (t *Transcoder) Transcode(raw []byte, mode models.ColorMode, format models.OutputFormat) ([]byte, error) {
	src, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	converted, err := Convert(src, mode)
	if err != nil {
		return nil, &EncodeError{Format: format, Mode: mode, Err: err}
	}

	var buf bytes.Buffer
	if err := t.encode(&buf, converted, mode, format); err != nil {
		return nil, &EncodeError{Format: format, Mode: mode, Err: err}
	}
	return buf.Bytes(), nil
}

// Decode sniffs and decodes raw image bytes
func Decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: errors.New("empty payload")}
	}

	mime := mimetype.Detect(raw)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, &DecodeError{Err: fmt.Errorf("payload is %s, not an image", mime.String())}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// Convert returns a copy of src in the requested color mode:
// L is 8-bit luma, RGB is opaque 8-bit per channel, CMYK is 8-bit per ink.
// A CMYK image survives only as far as encoding: image/jpeg writes it back
// as a YCbCr JPEG, and every other format rejects it.
func Convert(src image.Image, mode models.ColorMode) (image.Image, error) {
	b := src.Bounds()

	switch mode {
	case models.ColorModeL:
		dst := image.NewGray(b)
		draw.Draw(dst, b, src, b.Min, draw.Src)
		return dst, nil

	case models.ColorModeRGB:
		// Alpha is dropped, not composited
		dst := image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
				c.A = 0xff
				dst.SetNRGBA(x, y, c)
			}
		}
		return dst, nil

	case models.ColorModeCMYK:
		dst := image.NewCMYK(b)
		draw.Draw(dst, b, src, b.Min, draw.Src)
		return dst, nil

	default:
		return nil, fmt.Errorf("unknown color mode %q", mode)
	}
}

func (t *Transcoder) encode(buf *bytes.Buffer, img image.Image, mode models.ColorMode, format models.OutputFormat) error {
	// Only JPEG accepts CMYK input
	if mode == models.ColorModeCMYK && format != models.FormatJPEG {
		return ErrUnsupportedConversion
	}

	switch format {
	case models.FormatPNG:
		return png.Encode(buf, img)
	case models.FormatBMP:
		return bmp.Encode(buf, img)
	case models.FormatJPEG:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: t.jpegQuality})
	case models.FormatWEBP:
		return nativewebp.Encode(buf, img, nil)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

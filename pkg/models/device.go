package models

import "strings"

// ColorType is the physical panel capability forwarded to the render API
type ColorType string

const (
	ColorTypeBW ColorType = "BW"
	ColorType3C ColorType = "3C"
	ColorType4G ColorType = "4G"
	ColorType7C ColorType = "7C"
)

// OutputFormat is the container format returned to the device
type OutputFormat string

const (
	FormatJPEG OutputFormat = "JPEG"
	FormatBMP  OutputFormat = "BMP"
	FormatWEBP OutputFormat = "WEBP"
	FormatPNG  OutputFormat = "PNG"
)

// ColorMode is the pixel color space the image is converted into before encoding
type ColorMode string

const (
	ColorModeL    ColorMode = "L"
	ColorModeRGB  ColorMode = "RGB"
	ColorModeCMYK ColorMode = "CMYK"
)

// DefaultMIMEType is served when the output format has no known MIME type
const DefaultMIMEType = "application/octet-stream"

var formatToMIME = map[OutputFormat]string{
	FormatJPEG: "image/jpeg",
	FormatBMP:  "image/bmp",
	FormatWEBP: "image/webp",
	FormatPNG:  "image/png",
}

// MIMEType resolves the content type for a format name, case-insensitively.
// Unknown names map to DefaultMIMEType.
func MIMEType(format string) string {
	if mime, ok := formatToMIME[OutputFormat(strings.ToUpper(format))]; ok {
		return mime
	}
	return DefaultMIMEType
}

// MIMEType returns the content type served for this format
func (f OutputFormat) MIMEType() string {
	return MIMEType(string(f))
}

// Device is one configured e-paper display
type Device struct {
	Name             string       `yaml:"name" json:"name" validate:"required"`
	Endpoint         string       `yaml:"endpoint" json:"endpoint" validate:"required,endpoint"`
	MAC              string       `yaml:"mac" json:"mac" validate:"required"`
	Width            int          `yaml:"width" json:"width" validate:"gt=0"`
	Height           int          `yaml:"height" json:"height" validate:"gt=0"`
	ColorType        ColorType    `yaml:"color_type" json:"color_type" validate:"required,oneof=BW 3C 4G 7C"`
	OutputFormat     OutputFormat `yaml:"output_format" json:"output_format" validate:"required,oneof=JPEG BMP WEBP PNG"`
	ColorMode        ColorMode    `yaml:"color_mode" json:"color_mode" validate:"required,oneof=L RGB CMYK"`
	ImportDeviceInfo bool         `yaml:"import_device_info" json:"import_device_info"`
}

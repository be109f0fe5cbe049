package main

// The QOI stream layout: a 14-byte header ("qoif", big-endian uint32
// width and height, channel byte, colorspace byte), a variable op-code
// stream, and an 8-byte end padding.

const (
	qoiMagic      = "qoif"
	qoiHeaderSize = 14

	// 2GB is the largest file this codec handles safely. Assuming the
	// worst case of 5 bytes per pixel, 400 million pixels keeps the
	// size arithmetic below that.
	qoiPixelsMax = 400_000_000
)

// Op-code tags. The two-bit ops carry their payload in the low six
// bits; 0xfe/0xff are full-byte escapes, which is why a run length of
// 63 is not representable.
const (
	opIndex byte = 0x00 // 00xxxxxx
	opDiff  byte = 0x40 // 01xxxxxx
	opLuma  byte = 0x80 // 10xxxxxx
	opRun   byte = 0xc0 // 11xxxxxx
	opRGB   byte = 0xfe // 11111110
	opRGBA  byte = 0xff // 11111111

	opMask byte = 0xc0 // selects the two tag bits
)

var qoiPadding = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}

// ChannelMode is the number of channels per pixel in a flat buffer.
type ChannelMode uint8

const (
	ChannelRGB  ChannelMode = 3
	ChannelRGBA ChannelMode = 4
)

func (m ChannelMode) valid() bool {
	return m == ChannelRGB || m == ChannelRGBA
}

// Colorspace is an informational tag carried in the header. It does
// not affect how pixels are encoded.
type Colorspace uint8

const (
	ColorspaceSRGB   Colorspace = 0
	ColorspaceLinear Colorspace = 1
)

// Descriptor describes a flat pixel buffer accompanying it: Width x
// Height pixels, laid out row-major with Channels bytes per pixel.
type Descriptor struct {
	Width      int
	Height     int
	Channels   ChannelMode
	Colorspace Colorspace
}

func (d Descriptor) validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return ErrZeroDimension
	}
	// Division instead of Width*Height so the check itself cannot
	// overflow.
	if d.Height >= qoiPixelsMax/d.Width {
		return ErrTooManyPixels
	}
	return nil
}

// pixel is the canonical in-flight pixel value. Alpha is 255 for
// 3-channel buffers.
type pixel struct {
	r, g, b, a uint8
}

// colorHash maps a pixel to its slot in the 64-entry color cache.
func colorHash(p pixel) int {
	return (int(p.r)*3 + int(p.g)*5 + int(p.b)*7 + int(p.a)*11) % 64
}

// FormatError reports a malformed or foreign byte stream.
type FormatError string

func (e FormatError) Error() string { return "qoif: " + string(e) }

// ValidationError reports a descriptor the codec refuses to work
// with. The caller can correct it before retrying.
type ValidationError string

func (e ValidationError) Error() string { return "qoif: " + string(e) }

var (
	ErrInvalidMagic      = FormatError("bad magic")
	ErrInvalidChannels   = FormatError("bad channel count")
	ErrInvalidColorspace = FormatError("bad colorspace")

	ErrZeroDimension = ValidationError("zero width or height")
	ErrTooManyPixels = ValidationError("exceeded maximum safe pixel count")
)

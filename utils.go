package main

import (
	"encoding/binary"
	"image"
	"image/draw"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// WriteHeader appends the 14-byte header: magic(4) + width(uint32) +
// height(uint32) + channels(uint8) + colorspace(uint8).
func WriteHeader(out []byte, desc Descriptor) []byte {
	out = append(out, qoiMagic...)
	out = binary.BigEndian.AppendUint32(out, uint32(desc.Width))
	out = binary.BigEndian.AppendUint32(out, uint32(desc.Height))
	return append(out, byte(desc.Channels), byte(desc.Colorspace))
}

// ReadHeader reads and validates the 14-byte header. A nonzero force
// mode wins over the channel byte in the stream; the byte is consumed
// either way and then not validated, since the caller's choice
// determines the output layout.
func ReadHeader(r io.Reader, force ChannelMode) (Descriptor, error) {
	var buf [qoiHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Descriptor{}, noEOF(err)
	}
	if string(buf[0:4]) != qoiMagic {
		return Descriptor{}, ErrInvalidMagic
	}

	desc := Descriptor{
		Width:  int(binary.BigEndian.Uint32(buf[4:8])),
		Height: int(binary.BigEndian.Uint32(buf[8:12])),
	}

	switch {
	case force != 0:
		desc.Channels = force
	case ChannelMode(buf[12]).valid():
		desc.Channels = ChannelMode(buf[12])
	default:
		return Descriptor{}, ErrInvalidChannels
	}

	switch buf[13] {
	case byte(ColorspaceSRGB), byte(ColorspaceLinear):
		desc.Colorspace = Colorspace(buf[13])
	default:
		return Descriptor{}, ErrInvalidColorspace
	}

	return desc, nil
}

// noEOF turns a bare EOF into ErrUnexpectedEOF: once the header has
// promised pixels, running out of bytes is a truncation.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ImageToNRGBA copies any image.Image into an *image.NRGBA with bounds
// starting at (0,0). NRGBA keeps alpha straight, which the codec needs
// for bit-exact round trips.
func ImageToNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func EncodeZstd(w io.Writer, raw []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(runtime.NumCPU()))
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func DecodeZstd(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return io.ReadAll(dec)
}

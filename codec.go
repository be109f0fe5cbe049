package main

import (
	"bufio"
	"fmt"
	"io"
)

// The encoder and decoder below run the same state machine: a running
// previous pixel seeded to (0,0,0,255) and a 64-slot color cache,
// updated identically on both sides. Op selection is strictly ordered
// run > index > diff > luma > rgb/rgba; reordering it would still
// round-trip against itself but break interop with every other QOI
// implementation.

// Encoder reuses its output buffer across Encode calls to reduce
// allocations. It is not safe for concurrent use. The returned []byte
// is reused and will be overwritten on the next Encode call.
type Encoder struct {
	out []byte
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode compresses a flat RGB or RGBA pixel buffer into a QOI byte
// stream. The buffer length must equal Width*Height*Channels; a
// mismatch is a caller bug and panics. A fresh encoder is used, so the
// returned slice is not shared with anything.
func Encode(pixels []byte, desc Descriptor) ([]byte, error) {
	return NewEncoder().Encode(pixels, desc)
}

func (e *Encoder) Encode(pixels []byte, desc Descriptor) ([]byte, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	ch := int(desc.Channels)
	if !desc.Channels.valid() {
		panic(fmt.Sprintf("qoif: invalid channel mode %d", ch))
	}
	if len(pixels) != desc.Width*desc.Height*ch {
		panic(fmt.Sprintf("qoif: pixel buffer is %d bytes, descriptor wants %d",
			len(pixels), desc.Width*desc.Height*ch))
	}

	// Worst case is one extra tag byte per pixel.
	maxSize := qoiHeaderSize + desc.Width*desc.Height*(ch+1) + len(qoiPadding)
	if cap(e.out) < maxSize {
		e.out = make([]byte, 0, maxSize)
	}
	out := WriteHeader(e.out[:0], desc)

	prev := pixel{a: 255}
	var cache [64]pixel
	run := 0
	last := len(pixels) - ch

	for pos := 0; pos <= last; pos += ch {
		px := pixel{r: pixels[pos], g: pixels[pos+1], b: pixels[pos+2], a: 255}
		if ch == 4 {
			px.a = pixels[pos+3]
		}

		if px == prev {
			run++
			if run == 62 || pos == last {
				out = append(out, opRun|byte(run-1))
				run = 0
			}
			continue
		}
		if run > 0 {
			out = append(out, opRun|byte(run-1))
			run = 0
		}

		idx := colorHash(px)
		if cache[idx] == px {
			out = append(out, opIndex|byte(idx))
			prev = px
			continue
		}
		cache[idx] = px

		if px.a != prev.a {
			out = append(out, opRGBA, px.r, px.g, px.b, px.a)
			prev = px
			continue
		}

		// uint8 subtraction wraps, so reinterpreting as int8 gives the
		// shortest signed distance between the channel values.
		dr := int8(px.r - prev.r)
		dg := int8(px.g - prev.g)
		db := int8(px.b - prev.b)

		drDg := dr - dg
		dbDg := db - dg

		switch {
		case dr >= -2 && dr <= 1 && dg >= -2 && dg <= 1 && db >= -2 && db <= 1:
			out = append(out, opDiff|byte(dr+2)<<4|byte(dg+2)<<2|byte(db+2))
		case dg >= -32 && dg <= 31 && drDg >= -8 && drDg <= 7 && dbDg >= -8 && dbDg <= 7:
			out = append(out, opLuma|byte(dg+32), byte(drDg+8)<<4|byte(dbDg+8))
		default:
			out = append(out, opRGB, px.r, px.g, px.b)
		}
		prev = px
	}

	out = append(out, qoiPadding[:]...)
	e.out = out
	return out, nil
}

// Decoder reuses its pixel buffer and read buffer across Decode calls
// to reduce allocations. It is not safe for concurrent use. The
// returned []byte is reused and will be overwritten on the next
// Decode call.
type Decoder struct {
	br  *bufio.Reader
	pix []byte
}

func NewDecoder() *Decoder {
	return &Decoder{br: bufio.NewReader(nil)}
}

// Decode reads a QOI byte stream and reconstructs the flat pixel
// buffer, sized by the channel mode declared in the header. A fresh
// decoder is used, so the returned slice is not shared with anything.
func Decode(r io.Reader) ([]byte, Descriptor, error) {
	return NewDecoder().Decode(r)
}

// DecodeChannels is Decode with the header's channel byte overridden:
// the byte is still consumed from the stream but the output buffer is
// laid out in the given mode. Forcing ChannelRGBA normalizes any
// image to 4-channel output.
func DecodeChannels(r io.Reader, ch ChannelMode) ([]byte, Descriptor, error) {
	return NewDecoder().DecodeChannels(r, ch)
}

func (d *Decoder) Decode(r io.Reader) ([]byte, Descriptor, error) {
	return d.decode(r, 0)
}

func (d *Decoder) DecodeChannels(r io.Reader, ch ChannelMode) ([]byte, Descriptor, error) {
	if !ch.valid() {
		panic(fmt.Sprintf("qoif: invalid forced channel mode %d", ch))
	}
	return d.decode(r, ch)
}

func (d *Decoder) decode(r io.Reader, force ChannelMode) ([]byte, Descriptor, error) {
	d.br.Reset(r)

	desc, err := ReadHeader(d.br, force)
	if err != nil {
		return nil, Descriptor{}, err
	}
	if err := desc.validate(); err != nil {
		return nil, Descriptor{}, err
	}

	ch := int(desc.Channels)
	n := desc.Width * desc.Height * ch
	if cap(d.pix) < n {
		d.pix = make([]byte, 0, n)
	}
	pix := d.pix[:0]

	px := pixel{a: 255}
	var cache [64]pixel
	run := 0

	// The pixel count comes from the header, not from the stream
	// length; the trailing padding is never inspected.
	for len(pix) < n {
		if run > 0 {
			run--
		} else {
			op, err := d.br.ReadByte()
			if err != nil {
				return nil, Descriptor{}, noEOF(err)
			}

			switch {
			case op == opRGB:
				var v [3]byte
				if _, err := io.ReadFull(d.br, v[:]); err != nil {
					return nil, Descriptor{}, noEOF(err)
				}
				px.r, px.g, px.b = v[0], v[1], v[2]
			case op == opRGBA:
				var v [4]byte
				if _, err := io.ReadFull(d.br, v[:]); err != nil {
					return nil, Descriptor{}, noEOF(err)
				}
				px = pixel{r: v[0], g: v[1], b: v[2], a: v[3]}
			case op&opMask == opIndex:
				px = cache[op]
			case op&opMask == opDiff:
				px.r += (op >> 4 & 0x03) - 2
				px.g += (op >> 2 & 0x03) - 2
				px.b += (op & 0x03) - 2
			case op&opMask == opLuma:
				v, err := d.br.ReadByte()
				if err != nil {
					return nil, Descriptor{}, noEOF(err)
				}
				dg := (op & 0x3f) - 32
				px.r += dg - 8 + (v >> 4 & 0x0f)
				px.g += dg
				px.b += dg - 8 + (v & 0x0f)
			default: // opRun
				// The count includes the pixel emitted this iteration.
				run = int(op & 0x3f)
			}

			cache[colorHash(px)] = px
		}

		pix = append(pix, px.r, px.g, px.b)
		if ch == 4 {
			pix = append(pix, px.a)
		}
	}

	d.pix = pix
	return pix, desc, nil
}

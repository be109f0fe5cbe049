package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

func main() {
	workers := flag.Int("j", runtime.NumCPU(), "parallel workers for batch conversion")
	zout := flag.Bool("z", false, "wrap encoded output in zstd (.qoi.zst)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Encode: qoif [-z] <input-image>...\nDecode: qoif <input.qoi[.zst]>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if len(inputs) == 1 {
		if err := convert(inputs[0], *zout); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	// Batch mode. Each conversion is independent and single-threaded,
	// so files are simply fanned out across workers.
	jobs := make(chan string, len(inputs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for input := range jobs {
				if err := convert(input, *zout); err != nil {
					mu.Lock()
					fmt.Fprintf(os.Stderr, "%s: %v\n", input, err)
					failed++
					mu.Unlock()
				}
			}
		}()
	}
	for _, input := range inputs {
		jobs <- input
	}
	close(jobs)
	wg.Wait()

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed\n", failed, len(inputs))
		os.Exit(1)
	}
}

// convert decodes .qoi / .qoi.zst inputs to PNG and encodes everything
// else to .qoi next to the input file.
func convert(inputPath string, zout bool) error {
	lower := strings.ToLower(inputPath)

	if strings.HasSuffix(lower, ".qoi") || strings.HasSuffix(lower, ".qoi.zst") {
		base := inputPath[:len(inputPath)-len(".qoi")]
		if strings.HasSuffix(lower, ".zst") {
			base = inputPath[:len(inputPath)-len(".qoi.zst")]
		}
		outPath := base + ".png"
		if err := decodeToPNG(inputPath, outPath); err != nil {
			return err
		}
		fmt.Printf("Decoded %s → %s\n", inputPath, outPath)
		return nil
	}

	outPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".qoi"
	if zout {
		outPath += ".zst"
	}
	if err := encodeToQOI(inputPath, outPath, zout); err != nil {
		return err
	}
	fmt.Printf("Encoded %s → %s\n", inputPath, outPath)
	return nil
}

func encodeToQOI(inPath, outPath string, zout bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return err
	}
	nrgba := ImageToNRGBA(img)

	enc, err := Encode(nrgba.Pix, Descriptor{
		Width:      nrgba.Rect.Dx(),
		Height:     nrgba.Rect.Dy(),
		Channels:   ChannelRGBA,
		Colorspace: ColorspaceSRGB,
	})
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if zout {
		return EncodeZstd(out, enc)
	}
	if _, err := out.Write(enc); err != nil {
		return err
	}
	return nil
}

func decodeToPNG(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader = bufio.NewReader(in)
	if strings.HasSuffix(strings.ToLower(inPath), ".zst") {
		plain, err := DecodeZstd(r)
		if err != nil {
			return err
		}
		r = bytes.NewReader(plain)
	}

	// Normalize to RGBA regardless of what the file declares.
	pix, desc, err := DecodeChannels(r, ChannelRGBA)
	if err != nil {
		return err
	}

	img := &image.NRGBA{
		Pix:    pix,
		Stride: desc.Width * 4,
		Rect:   image.Rect(0, 0, desc.Width, desc.Height),
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return png.Encode(out, img)
}

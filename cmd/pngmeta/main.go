// pngmeta prints the container-level metadata extracted from PNG files:
// image classification, color encoding, and embedded EXIF/IPTC/XMP.
//
// Usage:
//
//	pngmeta [flags] <filename> [<filename> ...]
//
// Options:
//
//	-q, --quiet    suppress warnings about damaged metadata chunks
//	-h, --help     print this message
//	--version      print version information
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/gwengle/pik"
	"github.com/gwengle/pik/pngbridge"
)

const version = "0.1.0"

var (
	quiet        = flag.BoolP("quiet", "q", false, "suppress warnings about damaged metadata chunks")
	printVersion = flag.Bool("version", false, "print version information")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pngmeta [flags] pngfile [pngfile ...]\n")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Print classification, color encoding and metadata of PNG files.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *printVersion {
		fmt.Printf("pngmeta %s\n", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	if *quiet {
		slog.SetLogLoggerLevel(slog.LevelError)
	}

	exitCode := 0
	for _, name := range flag.Args() {
		if err := printMeta(name); err != nil {
			fmt.Fprintf(os.Stderr, "pngmeta: %s: %v\n", name, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func printMeta(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	info, err := pngbridge.Decode(data)
	if err != nil {
		return err
	}

	fmt.Printf("\nfile %s:\n\n", fileName)
	fmt.Printf("image size: %d x %d, %d-bit\n", info.Width, info.Height, info.BitDepth)
	if info.Gray {
		fmt.Println("grayscale")
	}
	if info.HasAlpha {
		fmt.Println("has alpha")
	}

	printColor(&info.Meta.Color)

	if info.Meta.TargetNitsDiv50 != 5 {
		fmt.Printf("target luminance: %d nits\n", info.Meta.TargetNitsDiv50*50)
	}
	if len(info.Meta.EXIF) > 0 {
		fmt.Printf("exif: %d bytes\n", len(info.Meta.EXIF))
	}
	if len(info.Meta.IPTC) > 0 {
		fmt.Printf("iptc: %d bytes\n", len(info.Meta.IPTC))
	}
	if len(info.Meta.XMP) > 0 {
		fmt.Printf("xmp: %d bytes\n", len(info.Meta.XMP))
	}

	fmt.Println()
	return nil
}

func printColor(c *pik.ColorEncoding) {
	if c.AllDefault {
		fmt.Println("color: sRGB")
		return
	}

	space := "RGB"
	if c.IsGray() {
		space = "grayscale"
	}

	var transfer string
	switch c.TransferFunction {
	case pik.TransferSRGB:
		transfer = "sRGB"
	case pik.TransferLinear:
		transfer = "linear"
	case pik.TransferPQ:
		transfer = "PQ"
	case pik.TransferGamma:
		transfer = fmt.Sprintf("gamma %.5f", float64(c.GammaTimes1e5)/1e5)
	}

	var primaries string
	switch c.Primaries {
	case pik.PrimariesSRGB:
		primaries = "sRGB"
	case pik.Primaries2020:
		primaries = "BT.2020"
	case pik.PrimariesP3:
		primaries = "P3"
	case pik.PrimariesCustom:
		primaries = "custom"
	}

	fmt.Printf("color: %s, %s primaries, %s transfer", space, primaries, transfer)
	if len(c.ICC) > 0 {
		fmt.Printf(", icc %d bytes", len(c.ICC))
	}
	fmt.Println()
}

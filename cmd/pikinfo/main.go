// pikinfo prints header information from PIK container files.
//
// Usage:
//
//	pikinfo [flags] <filename> [<filename> ...]
//
// Options:
//
//	-g, --groups   print the per-group table of contents
//	-h, --help     print this message
//	--version      print version information
package main

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	flag "github.com/spf13/pflag"

	"github.com/gwengle/pik"
)

const version = "0.1.0"

var (
	printGroups  = flag.BoolP("groups", "g", false, "print the per-group table of contents")
	printVersion = flag.Bool("version", false, "print version information")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pikinfo [flags] imagefile [imagefile ...]\n")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Read PIK container files and print header fields and pass layout.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *printVersion {
		fmt.Printf("pikinfo %s\n", version)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	exitCode := 0
	for _, name := range flag.Args() {
		if err := printInfo(name); err != nil {
			fmt.Fprintf(os.Stderr, "pikinfo: %s: %v\n", name, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func printInfo(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}

	f, err := pik.DecodeFile(data)
	if err != nil {
		return err
	}

	fmt.Printf("\nfile %s:\n\n", fileName)
	printFileHeader(&f.Header)

	for i := range f.Passes {
		fmt.Printf("\npass %d:\n", i)
		printPass(&f.Passes[i])
	}

	fmt.Println()
	return nil
}

func printFileHeader(h *pik.FileHeader) {
	fmt.Printf("image size: %d x %d\n", h.XSize(), h.YSize())
	fmt.Printf("groups: %d\n", pik.NumGroups(h.XSize(), h.YSize()))

	m := &h.Metadata
	if !m.AllDefault {
		fmt.Printf("target luminance: %d nits\n", m.TargetNitsDiv50*50)
		printColor(&m.Color)
		if len(m.EXIF) > 0 {
			fmt.Printf("exif: %d bytes\n", len(m.EXIF))
		}
		if len(m.IPTC) > 0 {
			fmt.Printf("iptc: %d bytes\n", len(m.IPTC))
		}
		if len(m.XMP) > 0 {
			fmt.Printf("xmp: %d bytes\n", len(m.XMP))
		}
	}

	if !h.Preview.AllDefault {
		fmt.Printf("preview: %d x %d, %d bytes\n",
			h.Preview.XSize, h.Preview.YSize, h.Preview.SizeBits/8)
	}
	if !h.Animation.AllDefault {
		fmt.Printf("animation: %d loops, tick %d/%d s\n",
			h.Animation.NumLoops, h.Animation.TicksNumerator, h.Animation.TicksDenominator)
	}
}

func printColor(c *pik.ColorEncoding) {
	if c.AllDefault {
		fmt.Println("color: sRGB")
		return
	}
	fmt.Printf("color: %s, %s primaries, %s transfer, %s intent",
		colorSpaceDescription(c.ColorSpace),
		primariesDescription(c.Primaries),
		transferDescription(c),
		intentDescription(c.RenderingIntent))
	if len(c.ICC) > 0 {
		fmt.Printf(", icc %d bytes", len(c.ICC))
	}
	fmt.Println()
}

func printPass(p *pik.PassSection) {
	h := &p.Header
	fmt.Printf("size: %d bytes (payload %d)\n", h.Size, len(p.Payload))
	fmt.Printf("encoding: %s\n", h.Encoding)
	if h.IsLast {
		fmt.Println("last pass")
	}
	if h.HasAlpha {
		fmt.Println("has alpha")
	}
	if h.Flags != 0 {
		fmt.Printf("flags: 0x%x\n", h.Flags)
	}
	fmt.Printf("payload digest: %016x\n", xxhash.Sum64(p.Payload))

	if len(h.GroupSizes) > 0 {
		fmt.Printf("groups: %d\n", len(h.GroupSizes))
	}
	if *printGroups {
		for i, r := range pik.GroupByteRanges(h) {
			fmt.Printf("  group %4d: offset %8d, %8d bytes\n", i, r.Offset, r.Size)
		}
	}
}

func colorSpaceDescription(s pik.ColorSpace) string {
	switch s {
	case pik.ColorSpaceRGB:
		return "RGB"
	case pik.ColorSpaceGray:
		return "grayscale"
	default:
		return fmt.Sprintf("space %d", uint32(s))
	}
}

func primariesDescription(p pik.Primaries) string {
	switch p {
	case pik.PrimariesSRGB:
		return "sRGB"
	case pik.Primaries2020:
		return "BT.2020"
	case pik.PrimariesP3:
		return "P3"
	case pik.PrimariesCustom:
		return "custom"
	default:
		return fmt.Sprintf("primaries %d", uint32(p))
	}
}

func transferDescription(c *pik.ColorEncoding) string {
	switch c.TransferFunction {
	case pik.TransferSRGB:
		return "sRGB"
	case pik.TransferLinear:
		return "linear"
	case pik.TransferPQ:
		return "PQ"
	case pik.TransferGamma:
		return fmt.Sprintf("gamma %.5f", float64(c.GammaTimes1e5)/1e5)
	default:
		return fmt.Sprintf("transfer %d", uint32(c.TransferFunction))
	}
}

func intentDescription(i pik.RenderingIntent) string {
	switch i {
	case pik.IntentPerceptual:
		return "perceptual"
	case pik.IntentRelative:
		return "relative"
	case pik.IntentSaturation:
		return "saturation"
	case pik.IntentAbsolute:
		return "absolute"
	default:
		return fmt.Sprintf("intent %d", uint32(i))
	}
}

// Command pxnt-gen writes a sample .pxnt page: a solid-color background,
// plus, when -nav is set, a single NAVIGATE category covering the whole
// frame. It exists to
// produce fixtures for pixnet-server's content directory; it is not part
// of the core codec or server.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/pixnet/pixnetd/internal/pxnt"
)

func main() {
	out := flag.String("out", "page.pxnt", "output file path")
	title := flag.String("title", "Untitled", "page title metadata")
	width := flag.Int("width", 320, "page width in pixels")
	height := flag.Int("height", 240, "page height in pixels")
	r := flag.Int("r", 20, "background red component (0-255)")
	g := flag.Int("g", 20, "background green component (0-255)")
	b := flag.Int("b", 40, "background blue component (0-255)")
	compress := flag.Bool("compress", true, "zlib-compress the pixel and category planes")
	navTarget := flag.String("nav", "", "if set, make the whole page a NAVIGATE category to this target")
	flag.Parse()

	w, h := uint16(*width), uint16(*height)
	pixels := make([]byte, pxnt.PixelBufferSize(w, h))
	for i := 0; i < len(pixels); i += 4 {
		pixels[i] = byte(*r)
		pixels[i+1] = byte(*g)
		pixels[i+2] = byte(*b)
		pixels[i+3] = 255
	}
	catMap := make([]byte, pxnt.CategoryMapSize(w, h))

	var categories []pxnt.Category
	if *navTarget != "" {
		for i := 0; i < len(catMap); i += 2 {
			catMap[i], catMap[i+1] = 0x00, 0x01
		}
		navData := append([]byte{uint8(len(*navTarget))}, []byte(*navTarget)...)
		navData = append(navData, 0x00, 0x00)
		categories = append(categories, pxnt.Category{
			ID:           1,
			Name:         "nav_" + *navTarget,
			BehaviorID:   pxnt.BehaviorNavigate,
			Priority:     255,
			BehaviorData: navData,
		})
	}

	compression := pxnt.CompressionNone
	var flags uint16
	if *compress {
		compression = pxnt.CompressionZlib
		flags |= pxnt.FlagCompressedCategoryMap
	}

	page := &pxnt.Page{
		Header: pxnt.Header{
			Flags:       flags,
			Width:       w,
			Height:      h,
			PixelFormat: pxnt.FormatRGBA8,
			Compression: compression,
		},
		Metadata: pxnt.Metadata{
			Title:        *title,
			CustomFields: map[string]string{},
		},
		Pixels:           pixels,
		CategoryMap:      catMap,
		Categories:       categories,
		ExtendedMetadata: map[uint8][]byte{},
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("pxnt-gen: %v", err)
	}
	defer f.Close()

	if err := pxnt.Encode(f, page); err != nil {
		log.Fatalf("pxnt-gen: encode: %v", err)
	}
	log.Printf("pxnt-gen: wrote %s (%dx%d)", *out, w, h)
}

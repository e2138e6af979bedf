// Package registry scans a content directory for PXNT pages, indexes them
// by filename stem, and serves them to the pixserver dispatch loop. An
// optional sqlite-backed manifest cache avoids re-decoding files whose
// modification time hasn't changed since the last scan.
package registry

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pixnet/pixnetd/internal/pxnt"
)

const indexPageName = "index"

// Registry holds the decoded pages currently served by a pixnetd instance.
type Registry struct {
	mu    sync.RWMutex
	pages map[string]*pxnt.Page

	contentDir string
	cache      *ManifestCache // nil when manifest caching is disabled
}

// Open scans contentDir for *.pxnt files and loads each into memory. If
// manifestCachePath is non-empty, a sqlite cache at that path is used to
// skip re-decoding files whose mtime hasn't changed.
func Open(contentDir, manifestCachePath string) (*Registry, error) {
	r := &Registry{
		pages:      make(map[string]*pxnt.Page),
		contentDir: contentDir,
	}
	if manifestCachePath != "" {
		cache, err := OpenManifestCache(manifestCachePath)
		if err != nil {
			return nil, fmt.Errorf("registry: open manifest cache: %w", err)
		}
		r.cache = cache
	}
	if err := r.Rescan(); err != nil {
		if r.cache != nil {
			r.cache.Close()
		}
		return nil, err
	}
	return r, nil
}

// Close releases the manifest cache, if any.
func (r *Registry) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// Rescan re-reads contentDir and replaces the in-memory page table. The
// directory is created if missing, and a starter index/about page pair is
// written to it if it carries no *.pxnt files at all, mirroring a fresh
// install that has never been given content to serve. Unparseable files
// are skipped rather than aborting the whole scan.
func (r *Registry) Rescan() error {
	if err := os.MkdirAll(r.contentDir, 0755); err != nil {
		return fmt.Errorf("registry: create content dir %q: %w", r.contentDir, err)
	}

	entries, err := os.ReadDir(r.contentDir)
	if err != nil {
		return fmt.Errorf("registry: read content dir %q: %w", r.contentDir, err)
	}

	if !hasPXNTFile(entries) {
		log.Printf("registry: no *.pxnt files in %s, creating sample content", r.contentDir)
		if err := r.createSampleContent(); err != nil {
			return fmt.Errorf("registry: create sample content: %w", err)
		}
		entries, err = os.ReadDir(r.contentDir)
		if err != nil {
			return fmt.Errorf("registry: read content dir %q: %w", r.contentDir, err)
		}
	}

	pages := make(map[string]*pxnt.Page, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), ".pxnt") {
			continue
		}
		path := filepath.Join(r.contentDir, ent.Name())
		page, err := r.loadPage(path)
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		pages[stem] = page
	}

	if _, ok := pages[indexPageName]; !ok {
		pages[indexPageName] = synthesizeIndexPage(pages)
	}

	r.mu.Lock()
	r.pages = pages
	r.mu.Unlock()
	return nil
}

func hasPXNTFile(entries []os.DirEntry) bool {
	for _, ent := range entries {
		if !ent.IsDir() && strings.EqualFold(filepath.Ext(ent.Name()), ".pxnt") {
			return true
		}
	}
	return false
}

// sampleButton is one clickable rectangle on a generated starter page.
type sampleButton struct {
	Name       string
	X, Y, W, H int
	NavTarget  string
}

// createSampleContent writes a minimal two-page starter site (an index
// page linking to an about page, and an about page linking back) so a
// freshly created content directory has something to serve.
func (r *Registry) createSampleContent() error {
	index := buildSamplePage("Welcome to PIXNET", [3]byte{50, 100, 200}, []sampleButton{
		{Name: "home_1", X: 20, Y: 20, W: 80, H: 30, NavTarget: "index"},
		{Name: "about_2", X: 120, Y: 20, W: 80, H: 30, NavTarget: "about"},
	})
	about := buildSamplePage("About PIXNET", [3]byte{150, 150, 100}, []sampleButton{
		{Name: "back_1", X: 20, Y: 20, W: 80, H: 30, NavTarget: "index"},
	})
	if err := writeSamplePage(r.contentDir, "index", index); err != nil {
		return err
	}
	return writeSamplePage(r.contentDir, "about", about)
}

// buildSamplePage renders a solid-color background with one NAVIGATE
// category per button, its pixel rectangle filled in and its category map
// region tagged with the button's id.
func buildSamplePage(title string, bg [3]byte, buttons []sampleButton) *pxnt.Page {
	const width, height = 320, 240
	pixels := make([]byte, pxnt.PixelBufferSize(width, height))
	for i := 0; i < len(pixels); i += 4 {
		pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = bg[0], bg[1], bg[2], 255
	}
	catMap := make([]byte, pxnt.CategoryMapSize(width, height))

	categories := make([]pxnt.Category, 0, len(buttons))
	for i, b := range buttons {
		id := uint16(i + 1)
		for y := b.Y; y < b.Y+b.H && y < height; y++ {
			for x := b.X; x < b.X+b.W && x < width; x++ {
				pi := (y*width + x) * 4
				pixels[pi], pixels[pi+1], pixels[pi+2], pixels[pi+3] = 200, 200, 255, 255
				ci := (y*width + x) * 2
				binary.BigEndian.PutUint16(catMap[ci:ci+2], id)
			}
		}
		navData := append([]byte{uint8(len(b.NavTarget))}, []byte(b.NavTarget)...)
		navData = append(navData, 0x00, 0x00)
		categories = append(categories, pxnt.Category{
			ID:           id,
			Name:         b.Name,
			BehaviorID:   pxnt.BehaviorNavigate,
			Priority:     128,
			BehaviorData: navData,
		})
	}

	return &pxnt.Page{
		Header: pxnt.Header{
			Width:       width,
			Height:      height,
			PixelFormat: pxnt.FormatRGBA8,
			Compression: pxnt.CompressionNone,
		},
		Metadata:         pxnt.Metadata{Title: title, CustomFields: map[string]string{}},
		Pixels:           pixels,
		CategoryMap:      catMap,
		Categories:       categories,
		ExtendedMetadata: map[uint8][]byte{},
	}
}

func writeSamplePage(dir, name string, page *pxnt.Page) error {
	f, err := os.Create(filepath.Join(dir, name+".pxnt"))
	if err != nil {
		return err
	}
	defer f.Close()
	return pxnt.Encode(f, page)
}

func (r *Registry) loadPage(path string) (*pxnt.Page, error) {
	if r.cache != nil {
		if page, ok, err := r.cache.Lookup(path); err == nil && ok {
			return page, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	page, err := pxnt.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("registry: decode %s: %w", path, err)
	}

	if r.cache != nil {
		if err := r.cache.Store(path, page); err != nil {
			// Cache writes are an optimization; a failure here must not
			// prevent the page from serving.
			_ = err
		}
	}
	return page, nil
}

// Page returns the named page, or ok=false if no such page is loaded.
func (r *Registry) Page(name string) (*pxnt.Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[name]
	return p, ok
}

// IndexPage returns the synthesized or author-provided landing page.
func (r *Registry) IndexPage() *pxnt.Page {
	p, _ := r.Page(indexPageName)
	return p
}

// Names returns the loaded page names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// synthesizeIndexPage builds a minimal blank landing page listing the
// names of every other loaded page as NAVIGATE categories, used when the
// content directory carries no index.pxnt of its own.
func synthesizeIndexPage(pages map[string]*pxnt.Page) *pxnt.Page {
	const width, height = 320, 240
	pixels := make([]byte, pxnt.PixelBufferSize(width, height))
	for i := 0; i < len(pixels); i += 4 {
		pixels[i+3] = 255 // opaque black background
	}
	catMap := make([]byte, pxnt.CategoryMapSize(width, height))

	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]pxnt.Category, 0, len(names))
	for i, name := range names {
		navData := append([]byte{uint8(len(name))}, []byte(name)...)
		navData = append(navData, 0x00, 0x00)
		categories = append(categories, pxnt.Category{
			ID:           uint16(i + 1),
			Name:         "nav_" + name,
			BehaviorID:   pxnt.BehaviorNavigate,
			BehaviorData: navData,
		})
	}

	return &pxnt.Page{
		Header: pxnt.Header{
			Width:       width,
			Height:      height,
			PixelFormat: pxnt.FormatRGBA8,
			Compression: pxnt.CompressionNone,
		},
		Metadata: pxnt.Metadata{
			Title:        "Index",
			CustomFields: map[string]string{},
		},
		Pixels:           pixels,
		CategoryMap:      catMap,
		Categories:       categories,
		ExtendedMetadata: map[uint8][]byte{},
		FooterOK:         true,
	}
}

// Package testutil provides shared test helpers for setting up libraries,
// databases, and synthetic EPUB archives.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/haldvard/lectern/internal/assets"
	"github.com/haldvard/lectern/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lectern-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with an assets.Provider.
func TestLibrary(t *testing.T) (string, assets.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := assets.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// EPUBChapter describes one content document in a synthetic EPUB.
type EPUBChapter struct {
	Href   string
	Title  string // document <title>, omitted when empty
	Body   string // inner HTML of <body>
	Linear string // "no" excludes the entry from the linear reading order
}

// EPUBImage describes one image asset in a synthetic EPUB.
type EPUBImage struct {
	Path      string // archive path relative to the content root
	Data      []byte
	ID        string // manifest id, defaults to imgN
	Cover     bool   // mark with properties="cover-image"
	CoverMeta bool   // reference from <meta name="cover">
}

// EPUBSpec describes a synthetic EPUB archive. Content lives under OEBPS/
// with the package document at OEBPS/content.opf.
type EPUBSpec struct {
	Title     string
	Author    string
	Chapters  []EPUBChapter
	Images    []EPUBImage
	NCX       map[string]string // chapter href -> table of contents title
	Nav       map[string]string // chapter href -> EPUB 3 nav title
	OmitSpine bool
}

// BuildEPUB assembles spec into EPUB archive bytes.
func BuildEPUB(t *testing.T, spec EPUBSpec) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("BuildEPUB: create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("BuildEPUB: write %s: %v", name, err)
		}
	}

	add("mimetype", []byte("application/epub+zip"))
	add("META-INF/container.xml", []byte(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`))

	for _, ch := range spec.Chapters {
		add("OEBPS/"+ch.Href, chapterXHTML(ch))
	}
	for _, img := range spec.Images {
		add("OEBPS/"+img.Path, img.Data)
	}
	if len(spec.NCX) > 0 {
		add("OEBPS/toc.ncx", ncxXML(spec))
	}
	if len(spec.Nav) > 0 {
		add("OEBPS/nav.xhtml", navXML(spec))
	}
	add("OEBPS/content.opf", opfXML(spec))

	if err := zw.Close(); err != nil {
		t.Fatalf("BuildEPUB: close zip: %v", err)
	}
	return buf.Bytes()
}

func chapterXHTML(ch EPUBChapter) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head>`)
	if ch.Title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", ch.Title)
	}
	b.WriteString("</head><body>")
	b.WriteString(ch.Body)
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func opfXML(spec EPUBSpec) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">` + "\n")

	b.WriteString(`<metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` + "\n")
	if spec.Title != "" {
		fmt.Fprintf(&b, "<dc:title>%s</dc:title>\n", spec.Title)
	}
	if spec.Author != "" {
		fmt.Fprintf(&b, "<dc:creator>%s</dc:creator>\n", spec.Author)
	}
	for i, img := range spec.Images {
		if img.CoverMeta {
			fmt.Fprintf(&b, `<meta name="cover" content="%s"/>`+"\n", imageID(img, i))
		}
	}
	b.WriteString("</metadata>\n")

	b.WriteString("<manifest>\n")
	for i, ch := range spec.Chapters {
		fmt.Fprintf(&b, `<item id="ch%d" href="%s" media-type="application/xhtml+xml"/>`+"\n", i, ch.Href)
	}
	for i, img := range spec.Images {
		props := ""
		if img.Cover {
			props = ` properties="cover-image"`
		}
		fmt.Fprintf(&b, `<item id="%s" href="%s" media-type="%s"%s/>`+"\n", imageID(img, i), img.Path, imageMediaType(img.Path), props)
	}
	if len(spec.NCX) > 0 {
		b.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
	}
	if len(spec.Nav) > 0 {
		b.WriteString(`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	}
	b.WriteString("</manifest>\n")

	if !spec.OmitSpine {
		if len(spec.NCX) > 0 {
			b.WriteString(`<spine toc="ncx">` + "\n")
		} else {
			b.WriteString("<spine>\n")
		}
		for i, ch := range spec.Chapters {
			if ch.Linear != "" {
				fmt.Fprintf(&b, `<itemref idref="ch%d" linear="%s"/>`+"\n", i, ch.Linear)
			} else {
				fmt.Fprintf(&b, `<itemref idref="ch%d"/>`+"\n", i)
			}
		}
		b.WriteString("</spine>\n")
	}

	b.WriteString("</package>\n")
	return []byte(b.String())
}

func ncxXML(spec EPUBSpec) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n<navMap>\n")
	i := 0
	for _, ch := range spec.Chapters {
		title, ok := spec.NCX[ch.Href]
		if !ok {
			continue
		}
		i++
		fmt.Fprintf(&b, `<navPoint id="np%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/></navPoint>`+"\n", i, i, title, ch.Href)
	}
	b.WriteString("</navMap>\n</ncx>\n")
	return []byte(b.String())
}

func navXML(spec EPUBSpec) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"><head><title>Contents</title></head><body>` + "\n")
	b.WriteString(`<nav epub:type="toc"><ol>` + "\n")
	for _, ch := range spec.Chapters {
		title, ok := spec.Nav[ch.Href]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`+"\n", ch.Href, title)
	}
	b.WriteString("</ol></nav></body></html>\n")
	return []byte(b.String())
}

func imageID(img EPUBImage, i int) string {
	if img.ID != "" {
		return img.ID
	}
	return fmt.Sprintf("img%d", i)
}

func imageMediaType(p string) string {
	switch {
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	case strings.HasSuffix(p, ".jpg"), strings.HasSuffix(p, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(p, ".gif"):
		return "image/gif"
	case strings.HasSuffix(p, ".svg"):
		return "image/svg+xml"
	}
	return "image/png"
}

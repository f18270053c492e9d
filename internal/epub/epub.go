// Package epub unpacks EPUB archives into spine-ordered chapters, a cover
// reference, and the set of extracted images. The archive is zip + XML:
// META-INF/container.xml locates the OPF package document, whose manifest
// and spine define the content documents and their linear reading order.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/haldvard/lectern/internal/apperr"
)

// Chapter is one linear spine entry. HTML is the content document's body
// with image references rewritten to the flattened images/ layout; Text is
// the plain-text rendering used for context snippets and search.
type Chapter struct {
	Href  string
	Title string
	HTML  string
	Text  string
}

// Image is an extracted binary asset. Name is the flattened file name the
// chapter HTML refers to (images/<Name>).
type Image struct {
	Name string
	Data []byte
}

// Document is the parsed book: metadata, spine-ordered chapters, and assets.
type Document struct {
	Title      string
	Authors    []string
	Chapters   []Chapter
	Images     []Image
	CoverImage string // flattened image name, empty when the EPUB declares none
}

// Parse reads an EPUB archive from data. source names the archive in error
// messages (typically the uploaded filename). A malformed archive or a
// package without a spine yields an *apperr.ImportError; a missing cover
// does not.
func Parse(data []byte, source string) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.NewImportError(source, "not a zip archive", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[normalizeZipPath(f.Name)] = f
	}

	opfPath, err := locateOPF(files, source)
	if err != nil {
		return nil, err
	}
	opfData, err := readZipFile(files, opfPath)
	if err != nil {
		return nil, apperr.NewImportError(source, "read package document", err)
	}

	var pkg packageDoc
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, apperr.NewImportError(source, "parse package document", err)
	}
	if len(pkg.Spine.ItemRefs) == 0 {
		return nil, apperr.NewImportError(source, "package has no spine", nil)
	}

	opfDir := path.Dir(opfPath)
	itemsByID := make(map[string]manifestItem, len(pkg.Manifest.Items))
	for _, it := range pkg.Manifest.Items {
		itemsByID[it.ID] = it
	}

	// Flatten every manifest image into a single images/ directory,
	// renaming on basename collisions. imageNames maps the archive path of
	// each image to its final flattened name.
	imageNames := make(map[string]string)
	used := make(map[string]bool)
	var images []Image
	for _, it := range pkg.Manifest.Items {
		if !strings.HasPrefix(it.MediaType, "image/") {
			continue
		}
		full := resolveHref(opfDir, it.Href)
		raw, err := readZipFile(files, full)
		if err != nil {
			continue // listed but absent; not fatal
		}
		name := path.Base(full)
		for used[name] {
			name = "x_" + name
		}
		used[name] = true
		imageNames[full] = name
		images = append(images, Image{Name: name, Data: raw})
	}

	titles := chapterTitles(files, opfDir, pkg, itemsByID)

	var chapters []Chapter
	for _, ref := range pkg.Spine.ItemRefs {
		if strings.EqualFold(ref.Linear, "no") {
			continue
		}
		it, ok := itemsByID[ref.IDRef]
		if !ok || !isContentDoc(it.MediaType) {
			continue
		}
		full := resolveHref(opfDir, it.Href)
		raw, err := readZipFile(files, full)
		if err != nil {
			return nil, apperr.NewImportError(source, fmt.Sprintf("read spine document %s", it.Href), err)
		}
		body, text, docTitle, err := renderContent(raw, path.Dir(full), imageNames)
		if err != nil {
			return nil, apperr.NewImportError(source, fmt.Sprintf("parse spine document %s", it.Href), err)
		}
		title := titles[full]
		if title == "" {
			title = docTitle
		}
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(chapters)+1)
		}
		chapters = append(chapters, Chapter{
			Href:  it.Href,
			Title: title,
			HTML:  body,
			Text:  text,
		})
	}
	if len(chapters) == 0 {
		return nil, apperr.NewImportError(source, "spine contains no readable documents", nil)
	}

	doc := &Document{
		Title:      strings.TrimSpace(firstOr(pkg.Metadata.Titles, "")),
		Authors:    trimAll(pkg.Metadata.Creators),
		Chapters:   chapters,
		Images:     images,
		CoverImage: findCover(pkg, opfDir, imageNames),
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(path.Base(source), path.Ext(source))
	}
	return doc, nil
}

// locateOPF reads META-INF/container.xml and returns the package document
// path. A missing or unusable container is a malformed archive.
func locateOPF(files map[string]*zip.File, source string) (string, error) {
	raw, err := readZipFile(files, "META-INF/container.xml")
	if err != nil {
		return "", apperr.NewImportError(source, "missing META-INF/container.xml", err)
	}
	var c containerDoc
	if err := xml.Unmarshal(raw, &c); err != nil {
		return "", apperr.NewImportError(source, "parse container.xml", err)
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" {
			return normalizeZipPath(rf.FullPath), nil
		}
	}
	return "", apperr.NewImportError(source, "container.xml names no rootfile", nil)
}

// chapterTitles assembles a per-document title map from the NCX (EPUB 2)
// and the XHTML nav document (EPUB 3). NCX entries win; nav fills gaps.
func chapterTitles(files map[string]*zip.File, opfDir string, pkg packageDoc, items map[string]manifestItem) map[string]string {
	titles := make(map[string]string)

	if nav, ok := findNavItem(pkg); ok {
		full := resolveHref(opfDir, nav.Href)
		if raw, err := readZipFile(files, full); err == nil {
			for href, title := range parseNavTOC(raw, path.Dir(full)) {
				titles[href] = title
			}
		}
	}

	if it, ok := items[pkg.Spine.Toc]; ok && it.Href != "" {
		full := resolveHref(opfDir, it.Href)
		if raw, err := readZipFile(files, full); err == nil {
			var n ncxDoc
			if err := xml.Unmarshal(raw, &n); err == nil {
				collectNCX(n.NavMap.Points, path.Dir(full), titles)
			}
		}
	}
	return titles
}

func collectNCX(points []navPoint, dir string, out map[string]string) {
	for _, p := range points {
		src := stripFragment(p.Content.Src)
		title := strings.TrimSpace(p.Label.Text)
		if src != "" && title != "" {
			out[resolveHref(dir, src)] = title
		}
		collectNCX(p.Points, dir, out)
	}
}

func findNavItem(pkg packageDoc) (manifestItem, bool) {
	for _, it := range pkg.Manifest.Items {
		for _, prop := range strings.Fields(it.Properties) {
			if prop == "nav" {
				return it, true
			}
		}
	}
	return manifestItem{}, false
}

// findCover resolves the declared cover image: an EPUB 3 cover-image
// property, else the EPUB 2 <meta name="cover"> item reference, else a
// manifest image whose id is literally "cover".
func findCover(pkg packageDoc, opfDir string, imageNames map[string]string) string {
	byProp := func() string {
		for _, it := range pkg.Manifest.Items {
			for _, prop := range strings.Fields(it.Properties) {
				if prop == "cover-image" {
					return imageNames[resolveHref(opfDir, it.Href)]
				}
			}
		}
		return ""
	}
	byMeta := func() string {
		for _, m := range pkg.Metadata.Metas {
			if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
				continue
			}
			for _, it := range pkg.Manifest.Items {
				if it.ID == m.Content {
					return imageNames[resolveHref(opfDir, it.Href)]
				}
			}
		}
		return ""
	}
	byID := func() string {
		for _, it := range pkg.Manifest.Items {
			if strings.EqualFold(it.ID, "cover") && strings.HasPrefix(it.MediaType, "image/") {
				return imageNames[resolveHref(opfDir, it.Href)]
			}
		}
		return ""
	}
	for _, f := range []func() string{byProp, byMeta, byID} {
		if name := f(); name != "" {
			return name
		}
	}
	return ""
}

func isContentDoc(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/x-dtbook+xml":
		return true
	}
	return false
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		// Some archives percent-encode entry names.
		if dec, err := url.PathUnescape(name); err == nil {
			f, ok = files[dec]
		}
		if !ok {
			return nil, fmt.Errorf("no such entry: %s", name)
		}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// resolveHref joins a manifest href (relative to dir) into a normalised
// archive path, dropping fragments and percent-encoding.
func resolveHref(dir, href string) string {
	href = stripFragment(href)
	if dec, err := url.PathUnescape(href); err == nil {
		href = dec
	}
	if dir == "." || dir == "" {
		return normalizeZipPath(href)
	}
	return normalizeZipPath(path.Join(dir, href))
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

func normalizeZipPath(p string) string {
	return strings.TrimPrefix(path.Clean(p), "./")
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Package assets defines the per-book asset storage abstraction. The
// importer writes extracted images and cover art through it, and the web
// layer reads them back, so import logic stays testable without a real
// filesystem layout underneath.
package assets

// Provider stores extracted book assets. Names are slash-separated paths
// relative to the book's asset directory (e.g. "images/map.png").
type Provider interface {
	// Write stores data under the book's directory, creating it as needed.
	Write(bookID, name string, data []byte) error
	// Read returns the raw bytes of a stored asset.
	Read(bookID, name string) ([]byte, error)
	// Remove deletes the book's entire asset directory. Removing a book
	// that has no assets is not an error.
	Remove(bookID string) error
}

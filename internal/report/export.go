package report

import (
	"fmt"
	"io"
	"os"

	"github.com/codescout-dev/codescout/pkg/persist"
)

// Export encodes doc to w in the named format ("json" or "yaml"),
// optionally LZ4-compressed.
func Export(w io.Writer, doc *Document, format string, compress bool) error {
	codec, err := persist.ForFormat(format, compress)
	if err != nil {
		return err
	}

	return codec.Encode(w, doc)
}

// ExportFile writes doc to path in the named format.
func ExportFile(path string, doc *Document, format string, compress bool) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	return Export(file, doc, format, compress)
}

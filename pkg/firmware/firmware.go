// Package firmware locates and streams the stage-0 helper image the
// flasher uploads before it can talk to flash. The image ships inside
// a vendor tool archive; this package only knows how to find one entry
// inside an already-opened zip.Reader, never how to locate the
// archive itself on disk (that is the driver's job, per SPEC_FULL.md
// §6 / §9's "no global state" note).
package firmware

import (
	"archive/zip"
	"fmt"
	"io"
)

// DefaultEntry is the path, inside the vendor tool archive, of the
// stage-0 image this core expects. Callers bundling a different
// archive layout can pass their own entry name to Open.
const DefaultEntry = "Bee2MPTool_kits_v1.0.4.0/Bee2MPTool/Image/firmware0.bin"

// Open returns a reader over the zip entry named path inside zr. The
// caller owns closing the returned ReadCloser; a Session only Reads
// from it during upload and never closes it itself (pkg/flasher's
// Stage0Image is Read-only by design).
func Open(zr *zip.Reader, path string) (io.ReadCloser, error) {
	f, err := zr.Open(path)
	if err != nil {
		return nil, fmt.Errorf("firmware: open %q: %w", path, err)
	}
	return f, nil
}

// OpenDefault is a convenience wrapper around Open using DefaultEntry.
func OpenDefault(zr *zip.Reader) (io.ReadCloser, error) {
	return Open(zr, DefaultEntry)
}

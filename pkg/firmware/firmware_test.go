package firmware

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func buildArchive(t *testing.T, entries map[string][]byte) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Write(%q): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	r := bytes.NewReader(buf.Bytes())
	zr, err := zip.NewReader(r, int64(r.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	return zr
}

func TestOpenDefaultReadsBundledEntry(t *testing.T) {
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	zr := buildArchive(t, map[string][]byte{DefaultEntry: want})

	rc, err := OpenDefault(zr)
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("contents = % x, want % x", got, want)
	}
}

func TestOpenMissingEntry(t *testing.T) {
	zr := buildArchive(t, map[string][]byte{"unrelated.bin": {0x00}})
	if _, err := Open(zr, DefaultEntry); err == nil {
		t.Fatalf("Open(missing entry) = nil error, want error")
	}
}

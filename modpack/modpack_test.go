package modpack

import (
	"archive/zip"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"badc0de.net/pkg/go-bullseye/scaletab"
	"badc0de.net/pkg/go-bullseye/sprite"
	"badc0de.net/pkg/go-bullseye/ttesting"
)

func writeSprite(t *testing.T, dir, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})
	s := &sprite.Sprite{Frames: []sprite.Frame{{Image: img, DelayCS: 10}}}
	if err := sprite.EncodeFile(filepath.Join(dir, name), s); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func testTables() Tables {
	return Tables{
		Summary: scaletab.Table{Default: 2.7, Overrides: map[int]float64{25: 3.5}},
		Front:   scaletab.Table{Default: 1.0},
		Back:    scaletab.Table{Default: 1.0},
	}
}

func testMeta() Meta {
	return Meta{Name: "test-sprites", Version: "1.0", Author: "someone", Description: "test pack"}
}

func readEntry(t *testing.T, zr *zip.ReadCloser, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			r, err := f.Open()
			if err != nil {
				t.Fatalf("failed to open entry %s: %v", name, err)
			}
			defer r.Close()
			body, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("failed to read entry %s: %v", name, err)
			}
			return body
		}
	}
	t.Fatalf("entry %s not in archive", name)
	return nil
}

func TestBuild(t *testing.T) {
	src := t.TempDir()
	writeSprite(t, src, "025-front-n.gif")
	writeSprite(t, src, "025-back-n.gif")

	modPath := filepath.Join(t.TempDir(), "test.mod")
	if err := Build(src, modPath, "", testMeta(), testTables()); err != nil {
		t.Fatalf("failed to build: %v", err)
	}
	if _, err := os.Stat(strings.TrimSuffix(modPath, ".mod") + ".zip"); err == nil {
		t.Errorf("staging zip left behind")
	}

	zr, err := zip.OpenReader(modPath)
	if err != nil {
		t.Fatalf("failed to reopen mod: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{
		"sprites/",
		"sprites/battlesprites/",
		"sprites/battlesprites/025-front-n.gif",
		"sprites/battlesprites/025-back-n.gif",
		"sprites/battlesprites/table-summary-scale.txt",
		"sprites/battlesprites/table-front-scale.txt",
		"sprites/battlesprites/table-back-scale.txt",
		"info.xml",
		"README.md",
	} {
		if !names[want] {
			t.Errorf("archive is missing %s", want)
		}
	}

	meta, err := ParseInfo(readEntry(t, zr, "info.xml"))
	if err != nil {
		t.Fatalf("failed to parse info.xml: %v", err)
	}
	ttesting.AssertEqualString(t, "mod name", meta.Name, "test-sprites")
	ttesting.AssertEqualString(t, "mod author", meta.Author, "someone")

	table, err := scaletab.Parse(strings.NewReader(string(readEntry(t, zr, "sprites/battlesprites/table-summary-scale.txt"))))
	if err != nil {
		t.Fatalf("failed to parse summary table: %v", err)
	}
	if table.Scale(25) != 3.5 {
		t.Errorf("summary scale(25) = %v; want 3.5", table.Scale(25))
	}

	if !strings.Contains(string(readEntry(t, zr, "README.md")), "2 sprites") {
		t.Errorf("README does not report the sprite count")
	}
}

func writeTemplate(t *testing.T, path, entry, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(entry)
	if err != nil {
		t.Fatalf("failed to create template entry: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write template entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish template: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close template: %v", err)
	}
}

func TestBuildClonesTemplate(t *testing.T) {
	data := t.TempDir()
	writeTemplate(t, filepath.Join(data, TemplateName), "stock.txt", "stock content")
	t.Setenv("BULLSEYE_DATA_DIR", data)

	src := t.TempDir()
	writeSprite(t, src, "001-front-n.gif")

	modPath := filepath.Join(t.TempDir(), "templated.mod")
	if err := Build(src, modPath, "", testMeta(), testTables()); err != nil {
		t.Fatalf("failed to build: %v", err)
	}

	zr, err := zip.OpenReader(modPath)
	if err != nil {
		t.Fatalf("failed to reopen mod: %v", err)
	}
	defer zr.Close()

	if got := string(readEntry(t, zr, "stock.txt")); got != "stock content" {
		t.Errorf("template entry = %q; want %q", got, "stock content")
	}
	readEntry(t, zr, "sprites/battlesprites/001-front-n.gif")
}

func TestBuildTemplatePathOverride(t *testing.T) {
	// The template lives outside every datafile search location; only the
	// explicit path can reach it.
	tmplPath := filepath.Join(t.TempDir(), "custom-template.zip")
	writeTemplate(t, tmplPath, "custom.txt", "custom content")

	src := t.TempDir()
	writeSprite(t, src, "002-front-n.gif")

	modPath := filepath.Join(t.TempDir(), "custom.mod")
	if err := Build(src, modPath, tmplPath, testMeta(), testTables()); err != nil {
		t.Fatalf("failed to build: %v", err)
	}

	zr, err := zip.OpenReader(modPath)
	if err != nil {
		t.Fatalf("failed to reopen mod: %v", err)
	}
	defer zr.Close()

	if got := string(readEntry(t, zr, "custom.txt")); got != "custom content" {
		t.Errorf("template entry = %q; want %q", got, "custom content")
	}
}

func TestBuildMissingSource(t *testing.T) {
	modPath := filepath.Join(t.TempDir(), "x.mod")
	if err := Build(filepath.Join(t.TempDir(), "nope"), modPath, "", testMeta(), testTables()); err == nil {
		t.Fatalf("build from missing source succeeded")
	}
	if _, err := os.Stat(modPath); err == nil {
		t.Errorf("failed build left a .mod behind")
	}
}

// Package modpack assembles a finished sprite collection into a .mod
// archive the game loads directly.
//
// The archive layout mirrors a stock mod: sprites and scaling tables under
// sprites/battlesprites/, info.xml and README.md at the root, icon.png at
// the root when a bundled icon is available. When a Template.zip datafile
// is found its entries are cloned byte for byte first, so archive quirks
// the game's loader depends on (explicit directory entries, stock files)
// survive; the staged tree is appended after.
package modpack

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"badc0de.net/pkg/go-bullseye/paths"
	"badc0de.net/pkg/go-bullseye/reconcile"
	"badc0de.net/pkg/go-bullseye/scaletab"
)

// TemplateName is the datafile the archive is cloned from when present.
const TemplateName = "Template.zip"

const spriteRoot = "sprites/battlesprites"

// Meta is the mod metadata written to info.xml and README.md.
type Meta struct {
	Name        string
	Version     string
	Author      string
	Description string
	Weblink     string
}

// Tables are the three scaling tables every mod ships.
type Tables struct {
	Summary scaletab.Table
	Front   scaletab.Table
	Back    scaletab.Table
}

func (t Tables) byName() map[string]scaletab.Table {
	return map[string]scaletab.Table{
		"table-summary-scale.txt": t.Summary,
		"table-front-scale.txt":   t.Front,
		"table-back-scale.txt":    t.Back,
	}
}

// Build packages every GIF/PNG under srcDir into modPath (a ".mod" path).
// templatePath selects the template archive to clone; empty means search
// the datafile locations for TemplateName. The archive is written next to
// modPath with a ".zip" extension, verified by reopening, and only then
// renamed into place; a crash never leaves a half-written .mod behind.
func Build(srcDir, modPath, templatePath string, meta Meta, tables Tables) error {
	tmp := strings.TrimSuffix(modPath, filepath.Ext(modPath)) + ".zip"
	if err := buildZip(srcDir, tmp, templatePath, meta, tables); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := verify(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	// The destination may be held open by the game or a file manager.
	if err := reconcile.RetryIO("rename", modPath, func() error {
		os.Remove(modPath)
		return os.Rename(tmp, modPath)
	}); err != nil {
		return err
	}
	glog.Infof("packaged %s", modPath)
	return nil
}

func buildZip(srcDir, zipPath, templatePath string, meta Meta, tables Tables) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return errors.Wrapf(err, "could not create archive %s", zipPath)
	}
	zw := zip.NewWriter(out)

	if templatePath == "" {
		templatePath = paths.Find(TemplateName)
	}
	written := make(map[string]bool)
	if templatePath != "" {
		if err := cloneTemplate(zw, templatePath, written); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	} else {
		glog.Warningf("%s not found, building archive from scratch", TemplateName)
	}

	if err := writeStaged(zw, srcDir, meta, tables, written); err != nil {
		zw.Close()
		out.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return errors.Wrapf(err, "could not finish archive %s", zipPath)
	}
	return out.Close()
}

// cloneTemplate copies every template entry into zw without recompressing.
func cloneTemplate(zw *zip.Writer, tmplPath string, written map[string]bool) error {
	zr, err := zip.OpenReader(tmplPath)
	if err != nil {
		return errors.Wrapf(err, "could not open template %s", tmplPath)
	}
	defer zr.Close()

	for _, f := range zr.File {
		written[f.Name] = true
		w, err := zw.CreateRaw(&f.FileHeader)
		if err != nil {
			return errors.Wrapf(err, "could not clone template entry %s", f.Name)
		}
		r, err := f.OpenRaw()
		if err != nil {
			return errors.Wrapf(err, "could not read template entry %s", f.Name)
		}
		if _, err := io.Copy(w, r); err != nil {
			return errors.Wrapf(err, "could not copy template entry %s", f.Name)
		}
	}
	glog.V(1).Infof("cloned %d template entries from %s", len(zr.File), tmplPath)
	return nil
}

func writeStaged(zw *zip.Writer, srcDir string, meta Meta, tables Tables, written map[string]bool) error {
	addDirs := func(name string) error {
		dir := path.Dir(name)
		var parents []string
		for dir != "." && dir != "/" {
			parents = append(parents, dir+"/")
			dir = path.Dir(dir)
		}
		// Explicit directory entries, root first; some loaders want them.
		for i := len(parents) - 1; i >= 0; i-- {
			if written[parents[i]] {
				continue
			}
			written[parents[i]] = true
			if _, err := zw.Create(parents[i]); err != nil {
				return errors.Wrapf(err, "could not create directory entry %s", parents[i])
			}
		}
		return nil
	}

	add := func(name string, body []byte) error {
		if err := addDirs(name); err != nil {
			return err
		}
		written[name] = true
		w, err := zw.Create(name)
		if err != nil {
			return errors.Wrapf(err, "could not create archive entry %s", name)
		}
		_, err = w.Write(body)
		return errors.Wrapf(err, "could not write archive entry %s", name)
	}

	sprites, err := listSprites(srcDir)
	if err != nil {
		return err
	}
	for _, name := range sprites {
		body, err := os.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			return errors.Wrapf(err, "could not read sprite %s", name)
		}
		if err := add(path.Join(spriteRoot, name), body); err != nil {
			return err
		}
	}

	for name, table := range tables.byName() {
		var buf strings.Builder
		if err := table.Write(&buf, strings.TrimSuffix(name, ".txt")); err != nil {
			return errors.Wrapf(err, "could not render %s", name)
		}
		if err := add(path.Join(spriteRoot, name), []byte(buf.String())); err != nil {
			return err
		}
	}

	if err := add("info.xml", infoXML(meta)); err != nil {
		return err
	}
	if err := add("README.md", readme(meta, len(sprites))); err != nil {
		return err
	}
	if !written["icon.png"] {
		if f, err := paths.Open("icon.png"); err == nil {
			body, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return errors.Wrap(err, "could not read icon.png")
			}
			if err := add("icon.png", body); err != nil {
				return err
			}
		}
	}
	return nil
}

func listSprites(srcDir string) ([]string, error) {
	des, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not enumerate output collection %s", srcDir)
	}
	var names []string
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(de.Name())) {
		case ".gif", ".png":
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// verify reopens the archive and checks every entry decompresses.
func verify(zipPath string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrapf(err, "archive %s does not reopen", zipPath)
	}
	defer zr.Close()
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "archive entry %s does not open", f.Name)
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			r.Close()
			return errors.Wrapf(err, "archive entry %s is corrupt", f.Name)
		}
		r.Close()
	}
	return nil
}

func readme(meta Meta, spriteCount int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.Name)
	fmt.Fprintf(&b, "**Version:** %s  \n", meta.Version)
	fmt.Fprintf(&b, "**Author:** %s  \n", meta.Author)
	fmt.Fprintf(&b, "**Created:** %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "## Description\n%s\n\n", meta.Description)
	fmt.Fprintf(&b, "## Contents\n- **Sprite Count:** %d sprites\n", spriteCount)
	b.WriteString("- **Format:** GIF and PNG sprites with transparency support\n\n")
	b.WriteString("## Installation Instructions\n")
	b.WriteString("1. Back up your original sprites before installation\n")
	b.WriteString("2. Place the .mod file in the game's mods directory\n")
	b.WriteString("3. Enable the mod from the game's mod management screen\n")
	return []byte(b.String())
}

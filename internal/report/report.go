// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders the per-contrast Markdown report and the run
// summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
)

// PreviewRows is the number of table rows shown in a report.
const PreviewRows = 5

// Report collects notes, images and table previews for one contrast.
// Sections render in the order given to New, whatever order the branches
// fill them in. It is safe for concurrent use.
type Report struct {
	title string

	mu       sync.Mutex
	order    []string
	sections map[string]*section
	header   []string
}

type section struct {
	items []item
}

type item struct {
	note  string
	image string
	table *tableItem
}

type tableItem struct {
	title string
	path  string
	head  *matrix.Table
	err   error
}

// New returns an empty report with the named sections.
func New(title string, sections ...string) *Report {
	r := &Report{title: title, sections: make(map[string]*section, len(sections))}
	for _, s := range sections {
		r.order = append(r.order, s)
		r.sections[s] = &section{}
	}
	return r
}

// Header adds a line under the title.
func (r *Report) Header(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header = append(r.header, fmt.Sprintf(format, args...))
}

// Note adds a line of text to section.
func (r *Report) Note(sec, format string, args ...any) {
	r.add(sec, item{note: fmt.Sprintf(format, args...)})
}

// Image adds an image link to section.
func (r *Report) Image(sec, path string) {
	r.add(sec, item{image: path})
}

// Table adds a preview of the CSV table at path. The table is read now; a
// read failure shows up as a note in place of the preview.
func (r *Report) Table(sec, title, path string) {
	ti := &tableItem{title: title, path: path}
	if t, err := matrix.ReadCSVTable(path); err != nil {
		ti.err = err
	} else {
		ti.head = t.Head(PreviewRows)
	}
	r.add(sec, item{table: ti})
}

// Notes returns the notes of section in insertion order.
func (r *Report) Notes(sec string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	if s, ok := r.sections[sec]; ok {
		for _, it := range s.items {
			if it.note != "" {
				out = append(out, it.note)
			}
		}
	}
	return out
}

func (r *Report) add(sec string, it item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sections[sec]
	if !ok {
		s = &section{}
		r.sections[sec] = s
		r.order = append(r.order, sec)
	}
	s.items = append(s.items, it)
}

// Markdown renders the report. Image and table paths are made relative to
// dir when possible.
func (r *Report) Markdown(dir string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.title)
	for _, h := range r.header {
		fmt.Fprintf(&b, "%s\n\n", h)
	}
	for _, name := range r.order {
		s := r.sections[name]
		fmt.Fprintf(&b, "## %s\n\n", name)
		if len(s.items) == 0 {
			b.WriteString("_Nothing recorded._\n\n")
			continue
		}
		for _, it := range s.items {
			switch {
			case it.note != "":
				fmt.Fprintf(&b, "- %s\n\n", it.note)
			case it.image != "":
				p := relPath(dir, it.image)
				fmt.Fprintf(&b, "![%s](%s)\n\n", filepath.Base(it.image), p)
			case it.table != nil:
				writeTable(&b, dir, it.table)
			}
		}
	}
	return b.String()
}

// Write renders the report to path.
func (r *Report) Write(path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown(filepath.Dir(path))), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func writeTable(b *strings.Builder, dir string, t *tableItem) {
	fmt.Fprintf(b, "### %s\n\n", t.title)
	fmt.Fprintf(b, "Source: `%s`\n\n", relPath(dir, t.path))
	if t.err != nil {
		fmt.Fprintf(b, "- Could not preview table: %v\n\n", t.err)
		return
	}
	h := t.head
	fmt.Fprintf(b, "| %s |\n", strings.Join(escape(h.Header), " | "))
	b.WriteString("|")
	for range h.Header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range h.Rows {
		fmt.Fprintf(b, "| %s |\n", strings.Join(escape(row), " | "))
	}
	b.WriteString("\n")
}

func escape(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

func relPath(dir, path string) string {
	if dir == "" {
		return path
	}
	if rel, err := filepath.Rel(dir, path); err == nil {
		return rel
	}
	return path
}

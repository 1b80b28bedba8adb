// Package document holds the in-memory word-processor document that captures
// are appended to, and reads/writes it as an OOXML (.docx) package.
//
// A document opened from disk keeps every original package part untouched;
// appended blocks are rendered after the existing body content on save.
package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
)

const (
	// EMUPerInch is the number of English Metric Units in one inch.
	EMUPerInch int64 = 914400
	// MaxPrintWidth is the width images are scaled to (6.5in, a Letter page minus 1in margins).
	MaxPrintWidth = EMUPerInch * 13 / 2
)

var ErrUnsupportedDocument = errors.New("unsupported document")

// Alignment is a paragraph justification.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// BlockKind distinguishes appended blocks.
type BlockKind int

const (
	KindParagraph BlockKind = iota
	KindImage
	KindPageBreak
)

// Block is one appended body element. Each block renders as one paragraph.
type Block struct {
	Kind  BlockKind
	Text  string
	Align Alignment
	Image *Picture
}

// Picture is an embedded image and its print size.
type Picture struct {
	Source      string
	Format      string // png or jpeg
	Data        []byte
	PixelWidth  int
	PixelHeight int
	Width       int64 // EMU
	Height      int64 // EMU
}

// Document is an ordered sequence of blocks appended to an optional base package.
// It is not safe for concurrent use.
type Document struct {
	parts    map[string][]byte
	order    []string
	existing []string
	blocks   []Block
}

// New returns an empty document.
func New() *Document {
	d := &Document{parts: map[string][]byte{}}
	for _, p := range newPackageParts() {
		d.parts[p.name] = []byte(p.body)
		d.order = append(d.order, p.name)
	}
	return d
}

// Open loads a .docx package from path.
func Open(filename string) (*Document, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", filename, err)
	}
	defer zr.Close()

	d := &Document{parts: map[string][]byte{}}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", f.Name, filename, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", f.Name, filename, err)
		}
		d.parts[f.Name] = data
		d.order = append(d.order, f.Name)
	}

	body, ok := d.parts[partDocument]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s", ErrUnsupportedDocument, filename, partDocument)
	}
	paragraphs, err := paragraphTexts(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedDocument, filename, err)
	}
	d.existing = paragraphs

	log.Printf("Opened document %s (%d paragraphs)", filename, len(paragraphs))
	return d, nil
}

// HasContent reports whether the document has at least one paragraph.
func (d *Document) HasContent() bool {
	return len(d.existing)+len(d.blocks) > 0
}

// Paragraphs returns the text of every body paragraph, original content first.
func (d *Document) Paragraphs() []string {
	out := make([]string, 0, len(d.existing)+len(d.blocks))
	out = append(out, d.existing...)
	for _, b := range d.blocks {
		out = append(out, b.Text)
	}
	return out
}

// Blocks returns the blocks appended since the document was created or opened.
func (d *Document) Blocks() []Block {
	return append([]Block(nil), d.blocks...)
}

// AddParagraph appends a text paragraph.
func (d *Document) AddParagraph(text string, align Alignment) {
	d.blocks = append(d.blocks, Block{Kind: KindParagraph, Text: text, Align: align})
}

// AddPageBreak appends a paragraph holding a page break.
func (d *Document) AddPageBreak() {
	d.blocks = append(d.blocks, Block{Kind: KindPageBreak})
}

// AddPicture appends a centered image scaled to width (EMU), keeping its aspect ratio.
func (d *Document) AddPicture(imagePath string, width int64) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", imagePath, err)
	}
	if format != "png" && format != "jpeg" {
		return fmt.Errorf("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image %s has no pixels", imagePath)
	}

	d.blocks = append(d.blocks, Block{
		Kind:  KindImage,
		Align: AlignCenter,
		Image: &Picture{
			Source:      imagePath,
			Format:      format,
			Data:        data,
			PixelWidth:  cfg.Width,
			PixelHeight: cfg.Height,
			Width:       width,
			Height:      width * int64(cfg.Height) / int64(cfg.Width),
		},
	})
	return nil
}

// Save writes the document to filename. The file is replaced atomically.
func (d *Document) Save(filename string) error {
	parts, order, err := d.render()
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", filename, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	zw := zip.NewWriter(tmp)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to save document %s: %w", filename, err)
		}
		if _, err := w.Write(parts[name]); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to save document %s: %w", filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save document %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save document %s: %w", filename, err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("failed to save document %s: %w", filename, err)
	}

	log.Printf("Saved document %s (%d appended blocks)", filename, len(d.blocks))
	return nil
}

// render produces the package parts with the appended blocks merged in.
func (d *Document) render() (map[string][]byte, []string, error) {
	parts := make(map[string][]byte, len(d.parts)+len(d.blocks))
	for k, v := range d.parts {
		parts[k] = v
	}
	order := append([]string(nil), d.order...)

	rels, ok := parts[partDocumentRels]
	if !ok {
		rels = []byte(emptyRelationships)
		order = append(order, partDocumentRels)
	}
	docXML := parts[partDocument]
	types := parts[partContentTypes]

	r := newRenderer(docXML, rels)
	var body bytes.Buffer
	for _, b := range d.blocks {
		switch b.Kind {
		case KindPageBreak:
			body.WriteString(pageBreakXML)
		case KindImage:
			media := r.nextMediaName(parts, b.Image.Format)
			relID := r.addImageRel("media/" + media)
			mediaPart := path.Join("word", "media", media)
			parts[mediaPart] = b.Image.Data
			order = append(order, mediaPart)
			types = ensureDefault(types, b.Image.Format)
			r.writeImage(&body, b, relID, media)
		default:
			writeParagraph(&body, b.Text, b.Align)
		}
	}

	merged, err := insertBody(docXML, body.Bytes())
	if err != nil {
		return nil, nil, err
	}
	parts[partDocument] = merged
	parts[partDocumentRels] = r.rels
	parts[partContentTypes] = types
	return parts, order, nil
}

// ensureDefault registers the image content type for format unless the package already has it.
func ensureDefault(types []byte, format string) []byte {
	if bytes.Contains(bytes.ToLower(types), []byte(`extension="`+format+`"`)) {
		return types
	}
	entry := fmt.Sprintf(`<Default Extension="%s" ContentType="image/%s"/>`, format, format)
	idx := bytes.LastIndex(types, []byte("</Types>"))
	if idx < 0 {
		return types
	}
	out := make([]byte, 0, len(types)+len(entry))
	out = append(out, types[:idx]...)
	out = append(out, entry...)
	return append(out, types[idx:]...)
}

// insertBody places content after the last body paragraph, before the
// body-level section properties when present.
func insertBody(docXML, content []byte) ([]byte, error) {
	end := bytes.LastIndex(docXML, []byte("</w:body>"))
	if end < 0 {
		return nil, fmt.Errorf("%w: missing w:body", ErrUnsupportedDocument)
	}
	at := end
	if sect := bytes.LastIndex(docXML[:end], []byte("<w:sectPr")); sect >= 0 {
		if !bytes.Contains(docXML[sect:end], []byte("</w:p>")) {
			at = sect
		}
	}
	out := make([]byte, 0, len(docXML)+len(content))
	out = append(out, docXML[:at]...)
	out = append(out, content...)
	return append(out, docXML[at:]...), nil
}

package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

const (
	partContentTypes = "[Content_Types].xml"
	partRootRels     = "_rels/.rels"
	partDocument     = "word/document.xml"
	partDocumentRels = "word/_rels/document.xml.rels"

	nsWordMain = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsRels     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	relImage   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	emptyRelationships = xmlHeader +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

	pageBreakXML = `<w:p><w:r><w:br w:type="page"/></w:r></w:p>`
)

type packagePart struct {
	name string
	body string
}

// newPackageParts is the minimal package of an empty Letter-sized document with 1in margins.
func newPackageParts() []packagePart {
	return []packagePart{
		{partContentTypes, xmlHeader +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`},
		{partRootRels, xmlHeader +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`},
		{partDocument, xmlHeader +
			`<w:document xmlns:w="` + nsWordMain + `" xmlns:r="` + nsRels + `"><w:body>` +
			`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>` +
			`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>` +
			`</w:sectPr></w:body></w:document>`},
		{partDocumentRels, emptyRelationships},
	}
}

var (
	relIDPattern = regexp.MustCompile(`Id="([^"]+)"`)
	docPrPattern = regexp.MustCompile(`<wp:docPr[^>]*\sid="(\d+)"`)
)

// renderer allocates relationship ids, media names and drawing ids that do not
// collide with the base package.
type renderer struct {
	rels    []byte
	relIDs  map[string]bool
	nextRel int
	docPrID int
	media   int
}

func newRenderer(docXML, rels []byte) *renderer {
	r := &renderer{rels: rels, relIDs: map[string]bool{}, nextRel: 1}
	for _, m := range relIDPattern.FindAllSubmatch(rels, -1) {
		r.relIDs[string(m[1])] = true
	}
	for _, m := range docPrPattern.FindAllSubmatch(docXML, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n > r.docPrID {
			r.docPrID = n
		}
	}
	return r
}

func (r *renderer) addImageRel(target string) string {
	id := fmt.Sprintf("rIdShot%d", r.nextRel)
	for r.relIDs[id] {
		r.nextRel++
		id = fmt.Sprintf("rIdShot%d", r.nextRel)
	}
	r.relIDs[id] = true
	r.nextRel++

	entry := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"/>`, id, relImage, target)
	idx := bytes.LastIndex(r.rels, []byte("</Relationships>"))
	if idx < 0 {
		idx = len(r.rels)
	}
	out := make([]byte, 0, len(r.rels)+len(entry))
	out = append(out, r.rels[:idx]...)
	out = append(out, entry...)
	r.rels = append(out, r.rels[idx:]...)
	return id
}

func (r *renderer) nextMediaName(parts map[string][]byte, format string) string {
	for {
		r.media++
		name := fmt.Sprintf("screenshot%d.%s", r.media, format)
		if _, taken := parts["word/media/"+name]; !taken {
			return name
		}
	}
}

func (r *renderer) writeImage(w *bytes.Buffer, b Block, relID, name string) {
	r.docPrID++
	pic := b.Image
	w.WriteString(`<w:p>`)
	writeParagraphProps(w, b.Align)
	fmt.Fprintf(w, `<w:r><w:drawing>`+
		`<wp:inline distT="0" distB="0" distL="0" distR="0" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing">`+
		`<wp:extent cx="%d" cy="%d"/>`+
		`<wp:docPr id="%d" name="Picture %d"/>`+
		`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="0" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s" xmlns:r="`+nsRels+`"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		pic.Width, pic.Height, r.docPrID, r.docPrID, escape(name), relID, pic.Width, pic.Height)
}

func writeParagraph(w *bytes.Buffer, text string, align Alignment) {
	if text == "" && align == "" {
		w.WriteString(`<w:p/>`)
		return
	}
	w.WriteString(`<w:p>`)
	writeParagraphProps(w, align)
	if text != "" {
		w.WriteString(`<w:r><w:t xml:space="preserve">`)
		w.WriteString(escape(text))
		w.WriteString(`</w:t></w:r>`)
	}
	w.WriteString(`</w:p>`)
}

func writeParagraphProps(w *bytes.Buffer, align Alignment) {
	if align == "" || align == AlignLeft {
		return
	}
	fmt.Fprintf(w, `<w:pPr><w:jc w:val="%s"/></w:pPr>`, align)
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// paragraphTexts returns the text of each paragraph that is a direct child of w:body.
func paragraphTexts(docXML []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var (
		out      []string
		depth    int
		bodyAt   = -1
		inPara   bool
		inProps  bool
		inText   bool
		paraText bytes.Buffer
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Space != nsWordMain {
				continue
			}
			switch {
			case t.Name.Local == "body" && bodyAt < 0:
				bodyAt = depth
			case t.Name.Local == "p" && bodyAt >= 0 && depth == bodyAt+1:
				inPara = true
				paraText.Reset()
			case inPara && t.Name.Local == "pPr":
				inProps = true
			case inPara && t.Name.Local == "t":
				inText = true
			case inPara && !inProps && t.Name.Local == "tab":
				paraText.WriteByte('\t')
			}
		case xml.EndElement:
			if t.Name.Space == nsWordMain {
				switch {
				case t.Name.Local == "t":
					inText = false
				case t.Name.Local == "pPr":
					inProps = false
				case t.Name.Local == "p" && inPara && depth == bodyAt+1:
					out = append(out, paraText.String())
					inPara = false
				case t.Name.Local == "body" && depth == bodyAt:
					bodyAt = -1
				}
			}
			depth--
		case xml.CharData:
			if inText {
				paraText.Write(t)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

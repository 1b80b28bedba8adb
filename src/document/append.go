package document

import (
	"fmt"
	"log"
)

// PlaceholderPrefix starts the paragraph that replaces an image which could
// not be embedded.
const PlaceholderPrefix = "Error adding image to document: "

// AppendResult is the outcome of appending one captioned image.
type AppendResult struct {
	ImagePath string
	Embedded  bool
	Err       error
}

// AppendCaptioned appends a right-aligned caption, the image scaled to
// MaxPrintWidth and a blank spacer paragraph. With pageBreak set, a page break
// precedes the caption unless the document is still empty. An image that
// cannot be embedded is replaced by a placeholder paragraph.
func (d *Document) AppendCaptioned(imagePath, caption string, pageBreak bool) AppendResult {
	if pageBreak && d.HasContent() {
		d.AddPageBreak()
	}
	d.AddParagraph(caption, AlignRight)

	res := AppendResult{ImagePath: imagePath}
	if err := d.AddPicture(imagePath, MaxPrintWidth); err != nil {
		log.Printf("Error adding image to document: %v", err)
		d.AddParagraph(fmt.Sprintf("%s%v", PlaceholderPrefix, err), AlignLeft)
		res.Err = err
	} else {
		res.Embedded = true
		log.Printf("Added image to document: %s", imagePath)
	}

	d.AddParagraph("", "")
	return res
}

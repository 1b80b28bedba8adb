package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultOfficeBinary = "soffice"

var ErrNoDocument = errors.New("no saved document to convert")

// PDFConverter turns a saved document into a PDF at a sibling path.
type PDFConverter interface {
	Convert(ctx context.Context, docPath string) (string, error)
}

// PDFPath returns the sibling .pdf path of docPath.
func PDFPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".pdf"
}

// ConvertDocument checks that docPath exists and runs c on it. The source
// document is never written to.
func ConvertDocument(ctx context.Context, c PDFConverter, docPath string) (string, error) {
	if docPath == "" {
		return "", ErrNoDocument
	}
	if _, err := os.Stat(docPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDocument, err)
	}
	pdf, err := c.Convert(ctx, docPath)
	if err != nil {
		return "", fmt.Errorf("PDF conversion failed: %w", err)
	}
	log.Printf("Document converted to PDF: %s", pdf)
	return pdf, nil
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// OfficeConverter converts documents with a headless office suite
// (LibreOffice's soffice by default).
type OfficeConverter struct {
	binary string
	exec   executor
}

// NewOfficeConverter returns a converter that runs binary, or soffice when empty.
func NewOfficeConverter(binary string) *OfficeConverter {
	return newOfficeConverter(binary, osExecutor{})
}

func newOfficeConverter(binary string, exec executor) *OfficeConverter {
	if binary == "" {
		binary = defaultOfficeBinary
	}
	return &OfficeConverter{binary: binary, exec: exec}
}

// Convert writes {dir}/{base}.pdf next to docPath.
func (c *OfficeConverter) Convert(ctx context.Context, docPath string) (string, error) {
	bin, err := c.exec.LookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", c.binary, err)
	}
	out, err := c.exec.Run(ctx, bin, "--headless", "--convert-to", "pdf", "--outdir", filepath.Dir(docPath), docPath)
	if err != nil {
		return "", fmt.Errorf("running %s: %w: %s", c.binary, err, strings.TrimSpace(string(out)))
	}
	pdf := PDFPath(docPath)
	if _, err := os.Stat(pdf); err != nil {
		return "", fmt.Errorf("%s produced no PDF: %w", c.binary, err)
	}
	return pdf, nil
}

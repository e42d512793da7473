package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// CountPDFPages returns the number of pages in a PDF file.
func CountPDFPages(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}

// renderPage renders a single page from a PDF using pdftoppm (poppler-utils).
// pdftoppm renders the page correctly, unlike pdfcpu's image extraction which
// pulls embedded image objects whose internal numbering may not match page
// order. Output lands at <outDir>/page_%04d.png.
func renderPage(ctx context.Context, pdfPath, outDir string, pageNum int) error {
	// Check for cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create temp directory for output
	tmpDir, err := os.MkdirTemp("", "snapgloss-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// Output prefix for pdftoppm
	outputPrefix := filepath.Join(tmpDir, "page")

	// Run pdftoppm to render the page
	// -png: output PNG format
	// -f N: first page to render
	// -l N: last page to render
	// -r 300: resolution in DPI (matches reasonable quality for OCR)
	// -singlefile: don't add page number suffix (we handle naming ourselves)
	pageStr := fmt.Sprintf("%d", pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", "300",
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	srcPath := outputPrefix + ".png"
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	// Read the rendered image
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered image: %w", err)
	}

	// Write to destination with sequential naming
	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", pageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	return nil
}

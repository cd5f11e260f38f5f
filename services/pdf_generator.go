package services

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDFOptions contains options for PDF generation
type PDFOptions struct {
	PageOrientation string // portrait, landscape
	PageSize        string // letter, legal, A4
	MarginTop       int    // points (72 = 1 inch)
	MarginBottom    int
	MarginLeft      int
	MarginRight     int

	// HeaderTemplate and FooterTemplate are Chrome print templates; they
	// may use the pageNumber, totalPages and date classes.
	HeaderTemplate string
	FooterTemplate string
}

// DefaultPDFOptions returns A4 portrait with 2cm margins.
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageOrientation: "portrait",
		PageSize:        "A4",
		MarginTop:       56,
		MarginBottom:    56,
		MarginLeft:      56,
		MarginRight:     56,
	}
}

func (o PDFOptions) paperSize() (float64, float64) {
	var w, h float64
	switch o.PageSize {
	case "legal":
		w, h = 8.5, 14.0
	case "letter":
		w, h = 8.5, 11.0
	default: // A4
		w, h = 8.27, 11.69
	}
	if o.PageOrientation == "landscape" {
		w, h = h, w
	}
	return w, h
}

// PDFRenderer turns an HTML document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html string, options PDFOptions) ([]byte, error)
}

// PDF is the renderer used by the report endpoints.
var PDF PDFRenderer = &ChromePDFRenderer{}

// ChromePDFRenderer prints through a headless Chrome started per call.
type ChromePDFRenderer struct {
	ExecPath string
	Timeout  time.Duration
}

func NewChromePDFRenderer(execPath string) *ChromePDFRenderer {
	return &ChromePDFRenderer{ExecPath: execPath, Timeout: 60 * time.Second}
}

func (r *ChromePDFRenderer) Render(ctx context.Context, htmlContent string, options PDFOptions) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	// Custom path for headless-shell in Docker
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	paperWidth, paperHeight := options.paperSize()
	withHeaderFooter := options.HeaderTemplate != "" || options.FooterTemplate != ""
	header := options.HeaderTemplate
	if withHeaderFooter && header == "" {
		header = "<span></span>"
	}

	var pdfBuf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.Sleep(100*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				WithMarginTop(float64(options.MarginTop) / 72.0).
				WithMarginBottom(float64(options.MarginBottom) / 72.0).
				WithMarginLeft(float64(options.MarginLeft) / 72.0).
				WithMarginRight(float64(options.MarginRight) / 72.0).
				WithPrintBackground(true).
				WithDisplayHeaderFooter(withHeaderFooter).
				WithHeaderTemplate(header).
				WithFooterTemplate(options.FooterTemplate).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfBuf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return pdfBuf, nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"LabelPrinter/app/models"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"
)

// Label page geometry, in millimetres
const (
	PageWidthMM  = 70.0
	PageHeightMM = 50.0
	PageMarginMM = 5.0

	pointsPerMM = 72.0 / 25.4

	baselineRatio = 0.3
)

const (
	coreFont     = "Helvetica"
	embeddedFont = "LabelFont"
)

// DocumentRenderer produces a printable document for a whole label job
type DocumentRenderer interface {
	// Render writes one document covering every copy and returns its path
	Render(ctx context.Context, label models.Label) (string, error)
}

// PDFRendererConfig contains configuration for the PDF renderer
type PDFRendererConfig struct {
	// OutputDir is where ORDER_<id>.pdf files are written
	OutputDir string
	// FontPath is an optional TrueType font for the customer and box
	// lines; Helvetica is used when empty.
	FontPath string
	Logger   *zap.Logger
}

// PDFRenderer lays labels out on 70x50 mm pages, one page per box
type PDFRenderer struct {
	outputDir string
	fontPath  string
	logger    *zap.Logger

	createFile func(path string) (io.WriteCloser, error)
}

// NewPDFRenderer creates a renderer writing into cfg.OutputDir
func NewPDFRenderer(cfg PDFRendererConfig) (*PDFRenderer, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create label output directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.FontPath != "" {
		if _, err := os.Stat(cfg.FontPath); err != nil {
			logger.Warn("label font not found, falling back to Helvetica",
				zap.String("font_path", cfg.FontPath), zap.Error(err))
			cfg.FontPath = ""
		}
	}

	return &PDFRenderer{
		outputDir: cfg.OutputDir,
		fontPath:  cfg.FontPath,
		logger:    logger,
		createFile: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}, nil
}

// ZoneLayout is the computed geometry of one text zone
type ZoneLayout struct {
	FontSizePt float64
	BaselineMM float64 // distance from the top edge of the page
}

// PageLayout is the three-zone geometry shared by every page
type PageLayout struct {
	ZoneHeightMM float64
	OrderID      ZoneLayout
	Customer     ZoneLayout
	Box          ZoneLayout
}

// ComputeLayout derives font sizes and baselines from the fixed page size
func ComputeLayout() PageLayout {
	usable := PageHeightMM - 2*PageMarginMM
	zone := usable / 3.0
	zonePt := zone * pointsPerMM

	orderSize := clampFont(zonePt*0.8, 10, 48)
	otherSize := clampFont(zonePt*0.45, 8, 30)

	baseline := func(zoneIndex int) float64 {
		bottom := PageMarginMM + float64(zoneIndex+1)*zone
		return bottom - baselineRatio*zone
	}

	return PageLayout{
		ZoneHeightMM: zone,
		OrderID:      ZoneLayout{FontSizePt: orderSize, BaselineMM: baseline(0)},
		Customer:     ZoneLayout{FontSizePt: otherSize, BaselineMM: baseline(1)},
		Box:          ZoneLayout{FontSizePt: otherSize, BaselineMM: baseline(2)},
	}
}

func clampFont(size, lo, hi float64) float64 {
	return math.Max(lo, math.Min(math.Floor(size), hi))
}

// ArtifactPath returns where the document for orderID is written. Reprints
// of the same order id reuse the same path.
func (r *PDFRenderer) ArtifactPath(orderID string) string {
	return filepath.Join(r.outputDir, "ORDER_"+sanitizeFileName(orderID)+".pdf")
}

// Render writes the label document. On failure no file is left behind.
func (r *PDFRenderer) Render(ctx context.Context, label models.Label) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &models.RenderError{OrderID: label.OrderID(), Cause: err}
	}

	pdf, err := r.build(label)
	if err != nil {
		return "", &models.RenderError{OrderID: label.OrderID(), Cause: err}
	}

	path := r.ArtifactPath(label.OrderID())
	if err := r.write(pdf, path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			r.logger.Warn("could not remove partial label document",
				zap.String("path", path), zap.Error(rmErr))
		}
		return "", &models.RenderError{OrderID: label.OrderID(), Cause: err}
	}

	r.logger.Info("label document written",
		zap.String("order_id", label.OrderID()),
		zap.Int("pages", label.BoxCount()),
		zap.String("path", path))
	return path, nil
}

func (r *PDFRenderer) build(label models.Label) (*fpdf.Fpdf, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: PageWidthMM, Ht: PageHeightMM},
	})
	pdf.SetMargins(PageMarginMM, PageMarginMM, PageMarginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("ORDER "+label.OrderID(), true)

	bodyFont := coreFont
	if r.fontPath != "" {
		pdf.AddUTF8Font(embeddedFont, "", r.fontPath)
		bodyFont = embeddedFont
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	// Core fonts take cp1252 bytes; the embedded font takes UTF-8
	coreText := pdf.UnicodeTranslatorFromDescriptor("")
	bodyText := coreText
	if bodyFont == embeddedFont {
		bodyText = func(s string) string { return s }
	}

	layout := ComputeLayout()
	orderID := coreText(label.RenderedOrderID())
	customer := bodyText(label.RenderedCustomer())

	for _, c := range label.Copies() {
		pdf.AddPage()

		pdf.SetFont(coreFont, "B", layout.OrderID.FontSizePt)
		pdf.Text(PageMarginMM, layout.OrderID.BaselineMM, orderID)

		pdf.SetFont(bodyFont, "", layout.Customer.FontSizePt)
		pdf.Text(PageMarginMM, layout.Customer.BaselineMM, customer)

		pdf.SetFont(bodyFont, "", layout.Box.FontSizePt)
		pdf.Text(PageMarginMM, layout.Box.BaselineMM, bodyText(c.BoxLine()))

		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("lay out page %d: %w", c.Index, err)
		}
	}
	return pdf, nil
}

func (r *PDFRenderer) write(pdf *fpdf.Fpdf, path string) error {
	f, err := r.createFile(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pdf.Output(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, s)
}

// Package qr builds per-table customer deep links and renders them as PNG
// QR codes, optionally framed with the table name and a footer banner.
package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/metrics"
)

// ErrRender wraps any failure to encode or draw a code.
var ErrRender = errors.New("failed to generate QR code")

const customerPath = "/customer/index.html"

// BuildLink returns <base>/customer/index.html?table_id=..&table_name=..[&tenant_id=..].
func BuildLink(base string, table core.TableID, tableName, tenantID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", fmt.Errorf("base url %q: %w", base, core.ErrInvalidInput)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute: %w", base, core.ErrInvalidInput)
	}
	u.Path = strings.TrimRight(u.Path, "/") + customerPath
	q := url.Values{}
	q.Set("table_id", string(table))
	q.Set("table_name", tableName)
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DataURL encodes a PNG for inline display.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

type Options struct {
	BaseURL    string
	Size       int
	ScanText   string
	FooterText string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type Generator struct {
	opts   Options
	logger *zap.Logger
}

func NewGenerator(opts Options) *Generator {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	return &Generator{opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Params describes one table's code. BaseURL overrides the generator's base
// URL; Business adds a header line above the table name when decorating.
type Params struct {
	TableID   core.TableID
	TableName string
	TenantID  string
	Business  string
	BaseURL   string
	Decorate  bool
}

type Code struct {
	TableID   core.TableID
	TableName string
	Link      string
	PNG       []byte
}

func (g *Generator) Generate(p Params) (Code, error) {
	table := core.TableID(strings.TrimSpace(string(p.TableID)))
	if table == "" {
		return Code{}, fmt.Errorf("table id is required: %w", core.ErrInvalidInput)
	}
	name := strings.TrimSpace(p.TableName)
	if name == "" {
		name = core.DefaultTableName(table)
	}
	base := g.opts.BaseURL
	if custom := strings.TrimSpace(p.BaseURL); custom != "" {
		base = custom
	}
	link, err := BuildLink(base, table, name, p.TenantID)
	if err != nil {
		return Code{}, err
	}

	var data []byte
	if p.Decorate {
		data, err = g.renderDecorated(link, strings.TrimSpace(p.Business), name)
	} else {
		data, err = render(link, g.opts.Size)
	}
	g.observe(err)
	if err != nil {
		g.logger.Error("qr render failed", zap.String("table_id", string(table)), zap.Error(err))
		return Code{}, err
	}
	return Code{TableID: table, TableName: name, Link: link, PNG: data}, nil
}

func (g *Generator) observe(err error) {
	if g.opts.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	g.opts.Metrics.QRRenderedTotal.WithLabelValues(result).Inc()
}

func render(content string, size int) ([]byte, error) {
	data, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return data, nil
}

const (
	lineHeight = 22
	padding    = 16
)

// renderDecorated lays out, top to bottom: business name, table name, the
// code, scan text, footer.
func (g *Generator) renderDecorated(content, business, tableName string) ([]byte, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	qrImg := code.Image(g.opts.Size)

	var header []string
	if business != "" {
		header = append(header, business)
	}
	header = append(header, tableName)
	var footer []string
	for _, s := range []string{g.opts.ScanText, g.opts.FooterText} {
		if s = strings.TrimSpace(s); s != "" {
			footer = append(footer, s)
		}
	}

	face := basicfont.Face7x13
	width := g.opts.Size
	for _, s := range append(append([]string(nil), header...), footer...) {
		if w := font.MeasureString(face, s).Ceil() + 2*padding; w > width {
			width = w
		}
	}
	height := padding + len(header)*lineHeight + g.opts.Size + len(footer)*lineHeight + padding

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	y := padding
	for _, s := range header {
		drawCentered(canvas, face, s, y+lineHeight-6)
		y += lineHeight
	}
	x := (width - g.opts.Size) / 2
	draw.Draw(canvas, image.Rect(x, y, x+g.opts.Size, y+g.opts.Size), qrImg, qrImg.Bounds().Min, draw.Over)
	y += g.opts.Size
	for _, s := range footer {
		drawCentered(canvas, face, s, y+lineHeight-6)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func drawCentered(dst draw.Image, face font.Face, s string, baseline int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	w := d.MeasureString(s).Ceil()
	d.Dot = fixed.P((dst.Bounds().Dx()-w)/2, baseline)
	d.DrawString(s)
}

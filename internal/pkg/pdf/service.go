package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/shopspring/decimal"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/order"
)

// Converter turns an HTML document into PDF bytes
type Converter func(html []byte) ([]byte, error)

// Service renders order receipts. It implements order.ReceiptRenderer.
type Service struct {
	storeName string
	baseURL   string
	convert   Converter
	now       func() time.Time
}

// NewService creates a receipt service backed by wkhtmltopdf
func NewService(cfg *config.Config) *Service {
	return NewServiceWithConverter(cfg, wkhtmlConvert)
}

// NewServiceWithConverter creates a receipt service with a custom converter
func NewServiceWithConverter(cfg *config.Config, convert Converter) *Service {
	return &Service{
		storeName: cfg.App.Name,
		baseURL:   strings.TrimRight(cfg.App.BaseURL, "/"),
		convert:   convert,
		now:       time.Now,
	}
}

var _ order.ReceiptRenderer = (*Service)(nil)

// RenderReceipt generates the PDF receipt of an order
func (s *Service) RenderReceipt(o *order.Order) ([]byte, error) {
	html, err := s.ReceiptHTML(o)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}
	doc, err := s.convert(html)
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}
	return doc, nil
}

// ReceiptHTML renders the HTML the PDF is produced from
func (s *Service) ReceiptHTML(o *order.Order) ([]byte, error) {
	data := ReceiptData{
		ReceiptNumber: "RCPT-" + o.OrderNumber,
		IssuedOn:      s.now().Format("January 2, 2006"),
		StoreName:     s.storeName,
		StoreURL:      s.baseURL,
		Order:         o,
		Currency:      o.Currency,
	}
	if p := o.LatestPayment(); p != nil {
		data.PaymentReference = p.ProviderPaymentID
		data.PaymentMethod = p.Method
	}
	if data.PaymentMethod == "" {
		data.PaymentMethod = o.PaymentMethod
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func wkhtmlConvert(html []byte) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, err
	}
	return pdfg.Bytes(), nil
}

// ReceiptData represents the data passed to the receipt template
type ReceiptData struct {
	ReceiptNumber    string
	IssuedOn         string
	StoreName        string
	StoreURL         string
	Currency         string
	PaymentMethod    string
	PaymentReference string
	Order            *order.Order
}

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.ReceiptNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #222; }
        .header { border-bottom: 2px solid #111; margin-bottom: 20px; padding-bottom: 10px; }
        .items-table { width: 100%; border-collapse: collapse; margin-top: 20px; }
        .items-table th, .items-table td { border-bottom: 1px solid #ddd; padding: 8px; text-align: left; }
        .num { text-align: right; }
        .totals { float: right; width: 300px; margin-top: 20px; }
        .totals td { padding: 4px 8px; }
        .total-row td { font-weight: bold; border-top: 2px solid #111; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.StoreName}}</h1>
        <p>Receipt {{.ReceiptNumber}} &middot; issued {{.IssuedOn}}</p>
        <p>Order {{.Order.OrderNumber}} &middot; {{.Order.Status}} / {{.Order.PaymentStatus}}</p>
    </div>

    <div>
        <h3>Billed to</h3>
        <p>{{.Order.Email}}</p>
        {{with .Order.Address}}
        <p>{{.FullName}}</p>
        <p>{{.Line1}}</p>
        {{if .Line2}}<p>{{.Line2}}</p>{{end}}
        <p>{{.City}}, {{.Province}} {{.PostalCode}}</p>
        <p>{{.Country}}</p>
        {{end}}
    </div>

    <table class="items-table">
        <thead>
            <tr><th>Item</th><th>SKU</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Total</th></tr>
        </thead>
        <tbody>
            {{range .Order.Items}}
            <tr>
                <td><strong>{{.ProductName}}</strong><br><small>{{.Size}} {{.Color}}</small></td>
                <td>{{.SKU}}</td>
                <td class="num">{{.Quantity}}</td>
                <td class="num">{{$.Currency}} {{money .UnitPrice}}</td>
                <td class="num">{{$.Currency}} {{money .TotalPrice}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <table>
            <tr><td>Subtotal:</td><td class="num">{{.Currency}} {{money .Order.Subtotal}}</td></tr>
            {{range .Order.Promotions}}
            <tr><td>{{.Name}}{{if .Code}} ({{.Code}}){{end}}:</td><td class="num">-{{$.Currency}} {{money .Amount}}</td></tr>
            {{end}}
            <tr><td>Shipping:</td><td class="num">{{.Currency}} {{money .Order.ShippingFee}}</td></tr>
            <tr class="total-row"><td>Total:</td><td class="num">{{.Currency}} {{money .Order.GrandTotal}}</td></tr>
        </table>
        <p>Paid via {{.PaymentMethod}}{{if .PaymentReference}} (ref {{.PaymentReference}}){{end}}</p>
    </div>

    <div style="clear: both;"></div>
    {{if .StoreURL}}<p>{{.StoreURL}}</p>{{end}}
</body>
</html>
`))

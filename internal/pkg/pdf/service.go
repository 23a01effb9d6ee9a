// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

var invoiceTmpl = template.Must(template.New("invoice").Parse(invoiceTemplate))

// Service handles PDF generation
type Service struct {
	company CompanyInfo
}

// NewService creates a new PDF service
func NewService(cfg config.InvoiceConfig) *Service {
	return &Service{
		company: CompanyInfo{
			Name:      cfg.CompanyName,
			Address:   cfg.CompanyAddress,
			Phone:     cfg.CompanyPhone,
			Email:     cfg.CompanyEmail,
			GSTNumber: cfg.GSTNumber,
		},
	}
}

// InvoiceData represents the data passed to the invoice template
type InvoiceData struct {
	InvoiceNumber string
	InvoiceDate   string
	OrderDate     string
	Order         *order.Order
	Lines         []InvoiceLine
	Subtotal      string
	ExpressCharge string
	Discount      string
	Total         string
	ShowExpress   bool
	ShowDiscount  bool
	Company       CompanyInfo
}

// InvoiceLine is one formatted order line
type InvoiceLine struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice string
	LineTotal string
}

// CompanyInfo represents the seller printed on the invoice
type CompanyInfo struct {
	Name      string
	Address   string
	Phone     string
	Email     string
	GSTNumber string
}

// RenderHTML builds the invoice markup for an order
func (s *Service) RenderHTML(o *order.Order, now time.Time) ([]byte, error) {
	data := InvoiceData{
		InvoiceNumber: "INV-" + o.OrderNumber,
		InvoiceDate:   now.Format("January 2, 2006"),
		OrderDate:     o.CreatedAt.Format("January 2, 2006"),
		Order:         o,
		Subtotal:      money(o.Currency, o.Subtotal.StringFixed(2)),
		ExpressCharge: money(o.Currency, o.ExpressCharge.StringFixed(2)),
		Discount:      money(o.Currency, o.Discount.StringFixed(2)),
		Total:         money(o.Currency, o.FinalTotal.StringFixed(2)),
		ShowExpress:   o.ExpressCharge.IsPositive(),
		ShowDiscount:  o.Discount.IsPositive(),
		Company:       s.company,
	}
	for _, l := range o.Lines {
		data.Lines = append(data.Lines, InvoiceLine{
			Name:      l.Name,
			SKU:       l.SKU,
			Quantity:  l.Quantity,
			UnitPrice: money(o.Currency, l.UnitPrice.StringFixed(2)),
			LineTotal: money(o.Currency, l.LineTotal.StringFixed(2)),
		})
	}

	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateInvoice renders the invoice and converts it with wkhtmltopdf
func (s *Service) GenerateInvoice(o *order.Order) (*bytes.Buffer, error) {
	htmlContent, err := s.RenderHTML(o, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(htmlContent))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

func money(currency, amount string) string {
	if currency == "INR" || currency == "" {
		return "₹" + amount
	}
	return currency + " " + amount
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Invoice {{.InvoiceNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; margin-bottom: 30px; border-bottom: 2px solid #eee; padding-bottom: 20px; }
        .invoice-title { font-size: 28px; font-weight: bold; color: #2563eb; margin-bottom: 10px; }
        .section-title { font-size: 16px; font-weight: bold; margin-bottom: 10px; color: #374151; }
        .items-table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
        .items-table th, .items-table td { border: 1px solid #ddd; padding: 12px 8px; text-align: left; }
        .items-table th { background-color: #f8f9fa; }
        .num { text-align: right; width: 90px; }
        .totals { float: right; width: 300px; }
        .totals td { padding: 8px; border-bottom: 1px solid #eee; text-align: right; }
        .total-row { font-size: 18px; font-weight: bold; }
        .status-badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; text-transform: uppercase; }
        .status-paid { background-color: #dcfce7; color: #166534; }
        .status-pending { background-color: #fef3c7; color: #92400e; }
        .footer { margin-top: 50px; padding-top: 20px; border-top: 1px solid #eee; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <h1>{{.Company.Name}}</h1>
            {{if .Company.Address}}<p>{{.Company.Address}}</p>{{end}}
            {{if .Company.Phone}}<p>Phone: {{.Company.Phone}}</p>{{end}}
            <p>Email: {{.Company.Email}}</p>
            {{if .Company.GSTNumber}}<p>GSTIN: {{.Company.GSTNumber}}</p>{{end}}
        </div>
        <div style="text-align: right;">
            <div class="invoice-title">INVOICE</div>
            <p><strong>Invoice #:</strong> {{.InvoiceNumber}}</p>
            <p><strong>Invoice Date:</strong> {{.InvoiceDate}}</p>
            <p><strong>Order #:</strong> {{.Order.OrderNumber}}</p>
            <p><strong>Order Date:</strong> {{.OrderDate}}</p>
            <p>
                <span class="status-badge {{if eq .Order.PaymentStatus "paid"}}status-paid{{else}}status-pending{{end}}">{{.Order.PaymentStatus}}</span>
                ({{.Order.PaymentMethod}})
            </p>
        </div>
    </div>

    <div>
        <div class="section-title">Ship To:</div>
        <p>{{.Order.ShippingAddress.Line1}}</p>
        {{if .Order.ShippingAddress.Line2}}<p>{{.Order.ShippingAddress.Line2}}</p>{{end}}
        {{if .Order.ShippingAddress.Landmark}}<p>Near {{.Order.ShippingAddress.Landmark}}</p>{{end}}
        <p>{{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.Zip}}</p>
        <p>{{.Order.ShippingAddress.Country}}</p>
        <p>Phone: {{.Order.ShippingAddress.Phone}}</p>
        <p>Delivery: {{.Order.Delivery.Mode}}</p>
    </div>

    <table class="items-table">
        <thead>
            <tr><th>Item</th><th>SKU</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Total</th></tr>
        </thead>
        <tbody>
            {{range .Lines}}
            <tr><td><strong>{{.Name}}</strong></td><td>{{.SKU}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.LineTotal}}</td></tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <table>
            <tr><td>Subtotal:</td><td>{{.Subtotal}}</td></tr>
            {{if .ShowExpress}}<tr><td>Express delivery:</td><td>{{.ExpressCharge}}</td></tr>{{end}}
            {{if .ShowDiscount}}<tr><td>Discount:</td><td>-{{.Discount}}</td></tr>{{end}}
            <tr class="total-row"><td>Total:</td><td>{{.Total}}</td></tr>
        </table>
    </div>

    <div style="clear: both;"></div>

    <div class="footer">
        <p>Thank you for your order!</p>
        <p>Questions about this invoice? Contact us at {{.Company.Email}}</p>
    </div>
</body>
</html>
`

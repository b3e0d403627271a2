package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
)

// ReceiptData is everything the renderer needs for one receipt document.
type ReceiptData struct {
	ReceiptID        string
	PaymentReference string
	PaidAt           *time.Time
	Order            *models.Order
}

// Renderer produces receipt PDFs. Store details from config fill in when the
// order payload omits them.
type Renderer struct {
	store config.StoreConfig
}

// NewRenderer returns a PDF renderer.
func NewRenderer(store config.StoreConfig) *Renderer {
	return &Renderer{store: store}
}

// Render lays out the receipt and returns the document bytes. An order with
// zero line items still renders a valid document.
func (r *Renderer) Render(data ReceiptData) ([]byte, error) {
	if data.Order == nil {
		return nil, fmt.Errorf("order is required")
	}
	order := data.Order

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Receipt %s", data.ReceiptID), false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	storeName := fallback(order.StoreName, r.store.Name)
	if storeName == "" {
		storeName = "Receipt"
	}
	doc.CellFormat(0, 10, storeName, "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 9)
	if addr := fallback(order.StoreAddress, r.store.Address); addr != "" {
		doc.CellFormat(0, 5, addr, "", 1, "C", false, 0, "")
	}
	if phone := fallback(order.StorePhone, r.store.Phone); phone != "" {
		doc.CellFormat(0, 5, phone, "", 1, "C", false, 0, "")
	}
	doc.Ln(6)

	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, fmt.Sprintf("Receipt: %s", data.ReceiptID), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Order: %s", order.OrderID), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Payment reference: %s", data.PaymentReference), "", 1, "L", false, 0, "")
	if data.PaidAt != nil {
		doc.CellFormat(0, 6, fmt.Sprintf("Paid at: %s", data.PaidAt.UTC().Format(time.RFC1123)), "", 1, "L", false, 0, "")
	}
	doc.CellFormat(0, 6, fmt.Sprintf("Customer: %s <%s>", order.CustomerName, order.CustomerEmail), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 6, fmt.Sprintf("Payment method: %s", order.PaymentMethod), "", 1, "L", false, 0, "")
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(90, 7, "Item", "B", 0, "L", false, 0, "")
	doc.CellFormat(25, 7, "Qty", "B", 0, "R", false, 0, "")
	doc.CellFormat(35, 7, "Unit price", "B", 0, "R", false, 0, "")
	doc.CellFormat(35, 7, "Amount", "B", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	for _, item := range order.Items {
		amount := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		doc.CellFormat(90, 7, item.Name, "", 0, "L", false, 0, "")
		doc.CellFormat(25, 7, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		doc.CellFormat(35, 7, formatMoney(item.UnitPrice, order.Currency), "", 0, "R", false, 0, "")
		doc.CellFormat(35, 7, formatMoney(amount, order.Currency), "", 1, "R", false, 0, "")
	}

	doc.Ln(3)
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(150, 8, "Total", "T", 0, "R", false, 0, "")
	doc.CellFormat(35, 8, formatMoney(order.TotalPrice, order.Currency), "T", 1, "R", false, 0, "")

	doc.Ln(8)
	doc.SetFont("Helvetica", "I", 9)
	doc.CellFormat(0, 5, "Thank you for your purchase.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}

func formatMoney(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %s", currency, d.Round(2).StringFixed(2))
}

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryLayout is the calendar date format accepted for medicine expiry dates.
const ExpiryLayout = "2006-01-02"

type Owner struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone" db:"phone"`
	Username      string    `json:"username" db:"username"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	PharmacyName  string    `json:"pharmacy_name" db:"pharmacy_name"`
	LicenseNumber string    `json:"license_number" db:"license_number"`
	Address       string    `json:"address" db:"address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	PharmacyName  string `json:"pharmacy_name"`
	LicenseNumber string `json:"license_number"`
	Address       string `json:"address"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	Owner       Owner  `json:"owner"`
}

type Medicine struct {
	ID           int64           `json:"id" db:"id"`
	OwnerID      int64           `json:"owner_id" db:"owner_id"`
	Name         string          `json:"name" db:"name"`
	Quantity     int             `json:"quantity" db:"quantity"`
	ExpiryDate   string          `json:"expiry_date" db:"expiry_date"`
	CostPrice    decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Expiry parses the stored expiry text. Rows imported before validation
// existed may hold free text, so callers must handle the error.
func (m Medicine) Expiry() (time.Time, error) {
	return ParseExpiry(m.ExpiryDate)
}

func ParseExpiry(raw string) (time.Time, error) {
	return time.Parse(ExpiryLayout, strings.TrimSpace(raw))
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type AddStockRequest struct {
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	ExpiryDate   string          `json:"expiry_date"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type PurgeResult struct {
	AsOf    string `json:"as_of"`
	Removed int    `json:"removed"`
	Skipped int    `json:"skipped"`
}

// LineItem is one cart entry. Name, Rate and Cost are optional on input and
// default to the stored medicine values; after a commit they hold the values
// actually charged.
type LineItem struct {
	MedicineID int64               `json:"medicine_id"`
	Name       string              `json:"name,omitempty"`
	Quantity   int                 `json:"quantity"`
	Rate       decimal.NullDecimal `json:"rate"`
	Cost       decimal.NullDecimal `json:"cost"`
}

func (l LineItem) Revenue() decimal.Decimal {
	return l.Rate.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l LineItem) CostOfGoods() decimal.Decimal {
	return l.Cost.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CommitRequest struct {
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Items         []LineItem `json:"items"`
}

type SaleTransaction struct {
	ID            string          `json:"id" db:"id"`
	OwnerID       int64           `json:"owner_id" db:"owner_id"`
	CustomerName  string          `json:"customer_name" db:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty" db:"customer_phone"`
	TotalRevenue  decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
	ItemCount     int             `json:"item_count" db:"item_count"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	Receipt       string          `json:"receipt,omitempty" db:"receipt"`
}

type CommitResult struct {
	Sale           SaleTransaction `json:"sale"`
	Lines          []LineItem      `json:"lines"`
	ReceiptName    string          `json:"receipt_name"`
	ReceiptWarning string          `json:"receipt_warning,omitempty"`
}

type SuggestRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Dashboard struct {
	AsOf              string            `json:"as_of"`
	MedicineCount     int               `json:"medicine_count"`
	ExpiringSoonCount int               `json:"expiring_soon_count"`
	LowStockCount     int               `json:"low_stock_count"`
	DateErrorCount    int               `json:"date_error_count"`
	SalesCount        int               `json:"sales_count"`
	TotalRevenue      decimal.Decimal   `json:"total_revenue"`
	TotalCost         decimal.Decimal   `json:"total_cost"`
	GrossProfit       decimal.Decimal   `json:"gross_profit"`
	RecentSales       []SaleTransaction `json:"recent_sales"`
}

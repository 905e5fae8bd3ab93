// Package model defines the typed records kept in the life-management
// collections together with views derived from them at read time.
package model

import (
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// GoalCategory groups goals on the dashboard.
type GoalCategory string

const (
	GoalCareer   GoalCategory = "career"
	GoalPersonal GoalCategory = "personal"
	GoalHealth   GoalCategory = "health"
	GoalFinance  GoalCategory = "finance"
)

type Goal struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Category   GoalCategory `json:"category"`
	Progress   int          `json:"progress"` // 0-100
	TargetDate string       `json:"targetDate"`
}

// MaintenanceItem is a recurring service on the vehicle. Its health is
// computed from the current mileage, see Health.
type MaintenanceItem struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	LastServiceDate    string `json:"lastServiceDate"`
	LastServiceMileage int    `json:"lastServiceMileage"`
	IntervalMonths     int    `json:"intervalMonths"`
	IntervalKm         int    `json:"intervalKm"`
}

// MaintenanceRecord logs one service visit. ItemID references
// MaintenanceItem.ID; ItemName is only set on records whose item could not
// be resolved when they were upgraded from the name-based format.
type MaintenanceRecord struct {
	ID       string          `json:"id"`
	ItemID   string          `json:"itemId,omitempty"`
	ItemName string          `json:"itemName,omitempty"`
	Date     string          `json:"date"`
	Mileage  int             `json:"mileage"`
	Cost     decimal.Decimal `json:"cost"`
	ShopName string          `json:"shopName,omitempty"`
	Note     string          `json:"note,omitempty"`
}

type StockHolding struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Shares       decimal.Decimal `json:"shares"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

type ExpenseRecord struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Note     string          `json:"note"`
}

// GalleryImage is one picture inside a profile's gallery.
type GalleryImage struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	LayoutSpan string `json:"layoutSpan"`
}

// GalleryProfile is a person pinned in the photo gallery. The gallery is
// embedded, in display order.
type GalleryProfile struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	GroupLabel      string         `json:"groupLabel"`
	BirthDate       string         `json:"birthDate"`
	Role            string         `json:"role"`
	Description     string         `json:"description"`
	ProfileImageURL string         `json:"profileImageUrl"`
	ThemeColor      string         `json:"themeColor"`
	Gallery         []GalleryImage `json:"gallery"`
}

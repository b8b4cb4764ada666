package domain

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus is the review state of a refund request.
type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

// Valid reports whether s is a known refund status.
func (s RefundStatus) Valid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusRejected:
		return true
	}
	return false
}

// RefundRequest is a customer's claim against a purchase, identified by OrderID.
type RefundRequest struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Status        RefundStatus    `json:"status"`
	RequestDate   time.Time       `json:"requestDate"`
	ProcessedDate *time.Time      `json:"processedDate,omitempty"`
	ProcessedBy   string          `json:"processedBy,omitempty"`
	AdminNotes    string          `json:"adminNotes,omitempty"`
	ItemType      string          `json:"itemType,omitempty"`
	ItemName      string          `json:"itemName,omitempty"`
}

// Project request statuses that still allow the deposit to be refunded.
const (
	ProjectStatusPending  = "pending"
	ProjectStatusApproved = "approved"
)

// ProjectDepositRate is the share of the budget paid up front.
var ProjectDepositRate = decimal.NewFromFloat(0.3)

const projectDepositNote = "30% deposit - Only refundable before project starts"

// LooseDecimal decodes numbers, numeric strings, empty strings and null.
// Unparseable input decodes to zero. Used for records written by other
// parts of the system where amounts have no fixed JSON type.
type LooseDecimal struct {
	decimal.Decimal
}

func (d *LooseDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(string(b))
	if err != nil {
		d.Decimal = decimal.Zero
		return nil
	}
	d.Decimal = v
	return nil
}

// ProjectRequest is a customer's commissioned project. Read-only here.
type ProjectRequest struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	Type          string       `json:"type"`
	Description   string       `json:"description,omitempty"`
	Budget        LooseDecimal `json:"budget"`
	Status        string       `json:"status"`
	SubmittedDate string       `json:"submittedDate,omitempty"`
	CreatedAt     string       `json:"createdAt,omitempty"`
}

// IsRefundable reports whether work on the project has not started yet.
func (p *ProjectRequest) IsRefundable() bool {
	return p.Status == ProjectStatusPending || p.Status == ProjectStatusApproved
}

// Payment is a recorded customer payment. Read-only here.
type Payment struct {
	ID               string       `json:"id"`
	UserID           string       `json:"userId"`
	PackageName      string       `json:"packageName,omitempty"`
	Amount           LooseDecimal `json:"amount"`
	Status           string       `json:"status,omitempty"`
	Date             string       `json:"date,omitempty"`
	ProjectRequestID string       `json:"projectRequestId,omitempty"`
}

// SupportPackage is a catalogue entry.
type SupportPackage struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Price LooseDecimal `json:"price"`
}

// UserPackage is a customer's purchase of a support package.
type UserPackage struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	PackageID    string `json:"packageId"`
	Status       string `json:"status"`
	PurchaseDate string `json:"purchaseDate,omitempty"`
}

const UserPackageStatusActive = "active"

// Catalog is the package catalogue document.
type Catalog struct {
	SupportPackages []SupportPackage `json:"supportPackages"`
	UserPackages    []UserPackage    `json:"userPackages"`
}

// FindPackage returns the catalogue entry with id, or nil.
func (c *Catalog) FindPackage(id string) *SupportPackage {
	for i := range c.SupportPackages {
		if c.SupportPackages[i].ID == id {
			return &c.SupportPackages[i]
		}
	}
	return nil
}

// RefundableItemType distinguishes the two purchase kinds.
type RefundableItemType string

const (
	RefundableItemProject RefundableItemType = "project"
	RefundableItemPackage RefundableItemType = "package"
)

// RefundableItem is a purchase a customer may still claim a refund for.
// It is derived on every request and never stored.
type RefundableItem struct {
	ID     string             `json:"id"`
	Type   RefundableItemType `json:"type"`
	Name   string             `json:"name"`
	Amount decimal.Decimal    `json:"amount"`
	Date   string             `json:"date"`
	Status string             `json:"status"`
	Note   string             `json:"note,omitempty"`
}

// RefundableItems lists the user's refundable purchases: projects that have
// not started, then active packages, minus anything already claimed by a
// pending refund request.
func RefundableItems(l *UserLedger, catalog *Catalog) []RefundableItem {
	items := []RefundableItem{}

	for _, p := range l.ProjectRequests {
		if p.UserID != l.UserID || !p.IsRefundable() {
			continue
		}
		items = append(items, RefundableItem{
			ID:     p.ID,
			Type:   RefundableItemProject,
			Name:   p.Type + " Project - Deposit",
			Amount: projectDeposit(p, l.Payments),
			Date:   firstNonEmpty(p.SubmittedDate, p.CreatedAt),
			Status: p.Status,
			Note:   projectDepositNote,
		})
	}

	if catalog != nil {
		for _, up := range catalog.UserPackages {
			if up.UserID != l.UserID || up.Status != UserPackageStatusActive {
				continue
			}
			pkg := catalog.FindPackage(up.PackageID)
			if pkg == nil {
				continue
			}
			items = append(items, RefundableItem{
				ID:     up.ID,
				Type:   RefundableItemPackage,
				Name:   pkg.Name,
				Amount: pkg.Price.Decimal,
				Date:   up.PurchaseDate,
				Status: UserPackageStatusActive,
			})
		}
	}

	filtered := items[:0]
	for _, item := range items {
		if l.HasPendingRefund(item.ID) {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// projectDeposit uses the payment explicitly linked to the project, falling
// back to the deposit share of the budget.
func projectDeposit(p ProjectRequest, payments []Payment) decimal.Decimal {
	for _, pay := range payments {
		if pay.ProjectRequestID != "" && pay.ProjectRequestID == p.ID {
			return pay.Amount.Decimal
		}
	}
	return p.Budget.Mul(ProjectDepositRate)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

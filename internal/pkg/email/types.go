package email

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmailType represents the type of email being sent
type EmailType string

const (
	EmailTypeOrderConfirmation EmailType = "order_confirmation"
)

// Email represents an email message
type Email struct {
	To          []string  `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"html_content"`
	Type        EmailType `json:"type"`
}

// EmailTemplateData contains common data for all email templates
type EmailTemplateData struct {
	SiteName  string
	SiteURL   string
	UserEmail string
	Year      int
}

// OrderConfirmationData is rendered into the paid-order confirmation
type OrderConfirmationData struct {
	EmailTemplateData
	OrderNumber   string
	OrderDate     string
	PaymentMethod string
	Currency      string
	Items         []OrderItem
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ShippingFee   decimal.Decimal
	GrandTotal    decimal.Decimal
	OrderURL      string
}

// OrderItem is one line of the confirmation
type OrderItem struct {
	Name     string
	Variant  string
	Quantity int
	Total    decimal.Decimal
}

func baseTemplateData(siteName, siteURL, userEmail string, now time.Time) EmailTemplateData {
	return EmailTemplateData{
		SiteName:  siteName,
		SiteURL:   siteURL,
		UserEmail: userEmail,
		Year:      now.Year(),
	}
}

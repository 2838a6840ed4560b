package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendConfig represents Resend email service configuration
type ResendConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	AdminEmail string
	// Endpoint overrides the API URL, used by tests.
	Endpoint string
}

// ResendNotifier sends transactional email via the Resend API
type ResendNotifier struct {
	config ResendConfig
	client *http.Client
}

// NewResendNotifier creates a new Resend notifier
func NewResendNotifier(config ResendConfig) *ResendNotifier {
	if config.Endpoint == "" {
		config.Endpoint = resendEndpoint
	}
	return &ResendNotifier{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ResendEmailRequest represents the request structure for Resend API
type ResendEmailRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	Tags    []ResendTag `json:"tags,omitempty"`
}

// ResendTag represents a tag for email categorization
type ResendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ResendEmailResponse represents the response from Resend API
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// ResendErrorResponse represents error response from Resend API
type ResendErrorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// getFromField constructs the from field properly
func (s *ResendNotifier) getFromField() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}
	return s.config.FromEmail
}

// SendOrderConfirmation emails the customer a summary of a paid order.
func (s *ResendNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	var rows, lines strings.Builder
	for _, item := range order.Items {
		name := itemDisplayName(item)
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%d</td><td>%s %s</td></tr>`,
			html.EscapeString(name), item.Quantity, order.Currency, item.LineTotal.StringFixed(2))
		fmt.Fprintf(&lines, "- %s x%d: %s %s\n", name, item.Quantity, order.Currency, item.LineTotal.StringFixed(2))
	}

	shipping := order.Currency + " " + order.Shipping.StringFixed(2)
	if order.ShippingPending {
		shipping = "to be quoted"
	}

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Order Confirmation</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>Thank you for your order, %s</h1>
  <p>Order reference: <strong>%s</strong></p>
  <table cellpadding="6">
    <tr><th align="left">Item</th><th>Qty</th><th>Total</th></tr>
    %s
  </table>
  <p>Subtotal: %s %s<br>Discount: %s %s<br>Tax: %s %s<br>Shipping: %s</p>
  <p><strong>Total paid: %s %s</strong></p>
</body>
</html>`,
		html.EscapeString(order.CustomerName), html.EscapeString(order.Reference), rows.String(),
		order.Currency, order.Subtotal.StringFixed(2),
		order.Currency, order.Discount.StringFixed(2),
		order.Currency, order.Tax.StringFixed(2),
		html.EscapeString(shipping),
		order.Currency, order.Total.StringFixed(2))

	textContent := fmt.Sprintf("Thank you for your order, %s\n\nOrder reference: %s\n\n%s\nShipping: %s\nTotal paid: %s %s\n",
		order.CustomerName, order.Reference, lines.String(), shipping, order.Currency, order.Total.StringFixed(2))

	return s.sendEmail(ctx, ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{order.Email},
		Subject: fmt.Sprintf("Order Confirmation - %s", order.Reference),
		HTML:    htmlContent,
		Text:    textContent,
		Tags:    []ResendTag{{Name: "category", Value: "order_confirmation"}},
	})
}

// SendDeliveryFeeQuoteNeeded tells the store admin an international order
// needs a shipping quote.
func (s *ResendNotifier) SendDeliveryFeeQuoteNeeded(ctx context.Context, order *models.Order) error {
	if s.config.AdminEmail == "" {
		log.Warn().Str("reference", order.Reference).Msg("no admin email configured, skipping delivery fee notice")
		return nil
	}

	addr := order.ShippingAddress
	destination := strings.Join(nonEmpty(addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country), ", ")
	text := fmt.Sprintf("Order %s for %s <%s> ships to %s and needs a delivery fee quote.\n\nOrder total: %s %s\n",
		order.Reference, order.CustomerName, order.Email, destination, order.Currency, order.Total.StringFixed(2))

	return s.sendEmail(ctx, ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{s.config.AdminEmail},
		Subject: fmt.Sprintf("Delivery fee quote needed - %s", order.Reference),
		Text:    text,
		HTML:    "<pre>" + html.EscapeString(text) + "</pre>",
		Tags:    []ResendTag{{Name: "category", Value: "delivery_fee_quote"}},
	})
}

// SendDeliveryFeeRequest sends the customer a payment link for the quoted
// delivery fee.
func (s *ResendNotifier) SendDeliveryFeeRequest(ctx context.Context, order *models.Order, paymentURL string) error {
	fee := order.DeliveryFee.Decimal.StringFixed(2)
	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Delivery Fee</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hello %s,</p>
  <p>The delivery fee for order <strong>%s</strong> is %s %s.</p>
  <p><a href="%s">Pay the delivery fee</a></p>
</body>
</html>`,
		html.EscapeString(order.CustomerName), html.EscapeString(order.Reference),
		order.Currency, fee, html.EscapeString(paymentURL))

	return s.sendEmail(ctx, ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{order.Email},
		Subject: fmt.Sprintf("Delivery fee for order %s", order.Reference),
		HTML:    htmlContent,
		Text: fmt.Sprintf("Hello %s,\n\nThe delivery fee for order %s is %s %s.\nPay here: %s\n",
			order.CustomerName, order.Reference, order.Currency, fee, paymentURL),
		Tags: []ResendTag{{Name: "category", Value: "delivery_fee_request"}},
	})
}

// sendEmail sends an email via Resend API
func (s *ResendNotifier) sendEmail(ctx context.Context, request ResendEmailRequest) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorResp ResendErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return fmt.Errorf("failed to send email, status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to send email: %s", errorResp.Message)
	}

	var response ResendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	log.Info().
		Str("email_id", response.ID).
		Strs("to", request.To).
		Str("subject", request.Subject).
		Msg("email sent")
	return nil
}

func itemDisplayName(item models.OrderItem) string {
	if item.ProductType == models.ProductBundle {
		parts := make([]string, 0, len(item.BundleDetails))
		for _, d := range item.BundleDetails {
			parts = append(parts, strings.Join(nonEmpty(d.ColorName, d.SizeName), " "))
		}
		return fmt.Sprintf("%s (%s)", item.ProductName, strings.Join(parts, ", "))
	}
	if extra := strings.Join(nonEmpty(item.ColorName, item.SizeName), " / "); extra != "" {
		return fmt.Sprintf("%s (%s)", item.ProductName, extra)
	}
	return item.ProductName
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

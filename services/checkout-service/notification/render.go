package notification

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var confirmationTemplate = template.Must(template.ParseFS(templateFS, "templates/order_confirmation.html"))

// RenderOrderConfirmation returns the subject and HTML body of the email.
func RenderOrderConfirmation(data *OrderConfirmation) (string, string, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return "Order Confirmation - " + data.OrderNumber, buf.String(), nil
}

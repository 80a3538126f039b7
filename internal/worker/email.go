package worker

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopsphere/shopsphere-api/internal/mailer"
	"github.com/shopsphere/shopsphere-api/internal/model"
)

type emailData struct {
	User  *model.User
	Order *model.Order
}

var emailTemplates = map[model.NotificationKind]struct {
	subject string
	body    *template.Template
}{
	model.NotifyOrderConfirmation: {
		subject: "Order Confirmation - %s",
		body: template.Must(template.New("order_confirmation").Parse(`<h1>Thank you for your order, {{.User.Name}}!</h1>
<p>Order number: <strong>{{.Order.OrderNumber}}</strong></p>
<table>
{{range .Order.Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>${{.Price.StringFixed 2}}</td></tr>
{{end}}</table>
<p>Items: ${{.Order.ItemsPrice.StringFixed 2}}<br>
Shipping: ${{.Order.ShippingPrice.StringFixed 2}}<br>
Tax: ${{.Order.TaxPrice.StringFixed 2}}<br>
<strong>Total: ${{.Order.TotalPrice.StringFixed 2}}</strong></p>
<p>Shipping to {{.Order.ShippingAddress.FirstName}} {{.Order.ShippingAddress.LastName}}, {{.Order.ShippingAddress.Address}}, {{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.ZipCode}}, {{.Order.ShippingAddress.Country}}</p>`)),
	},
	model.NotifyPaymentConfirmation: {
		subject: "Payment Received - %s",
		body: template.Must(template.New("payment_confirmation").Parse(`<h1>Payment received</h1>
<p>Hi {{.User.Name}}, we received your payment of <strong>${{.Order.TotalPrice.StringFixed 2}}</strong> for order {{.Order.OrderNumber}}.</p>
<p>We will let you know when it ships.</p>`)),
	},
	model.NotifyStatusUpdate: {
		subject: "Order Update - %s",
		body: template.Must(template.New("status_update").Parse(`<h1>Your order has been updated</h1>
<p>Hi {{.User.Name}}, order {{.Order.OrderNumber}} is now <strong>{{.Order.Status}}</strong>.</p>`)),
	},
}

func renderEmail(kind model.NotificationKind, user *model.User, order *model.Order) (mailer.Message, error) {
	tmpl, ok := emailTemplates[kind]
	if !ok {
		return mailer.Message{}, fmt.Errorf("notification kind %q: %w", kind, errSkip)
	}
	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, emailData{User: user, Order: order}); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return mailer.Message{
		To:      user.Email,
		Subject: fmt.Sprintf(tmpl.subject, order.OrderNumber),
		HTML:    buf.String(),
	}, nil
}

package alerting

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"price-alerts/internal/storage"
)

// Message is a rendered notification ready for a Sender.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

var htmlBody = template.Must(template.New("alert").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #e74c3c;">{{.Arrow}} Price Alert Triggered</h2>
  <h3>{{.Name}} ({{.Symbol}})</h3>
  <table style="width: 100%; border-collapse: collapse;">
    <tr><td><strong>Current Price:</strong></td><td>{{.Currency}} {{.Price}}</td></tr>
    <tr><td><strong>Alert Threshold:</strong></td><td>{{.Currency}} {{.Threshold}}</td></tr>
    <tr><td><strong>Condition:</strong></td><td>{{.Condition}}</td></tr>
  </table>
  <p style="color: #7f8c8d;">{{.Name}} is now {{.ConditionLower}} your threshold of {{.Currency}} {{.Threshold}}.</p>
  <p style="color: #7f8c8d;"><strong>Time:</strong> {{.Time}}</p>
</div>`))

type messageView struct {
	Arrow          string
	Name           string
	Symbol         string
	Currency       string
	Price          string
	Threshold      string
	Condition      string
	ConditionLower string
	Time           string
}

// Render builds the subject, plain text and HTML bodies for a triggered alert.
func Render(t Triggered) (Message, error) {
	name := t.Quote.Name
	if name == "" {
		name = t.Rule.Symbol
	}
	view := messageView{
		Arrow:          "📉",
		Name:           name,
		Symbol:         t.Rule.Symbol,
		Currency:       t.Quote.Currency,
		Price:          t.Quote.Price.String(),
		Threshold:      t.Rule.Threshold.String(),
		Condition:      strings.ToUpper(string(t.Rule.Condition)),
		ConditionLower: string(t.Rule.Condition),
		Time:           t.TriggeredAt.UTC().Format(time.RFC1123),
	}
	if t.Rule.Condition == storage.ConditionAbove {
		view.Arrow = "📈"
	}

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render alert html: %w", err)
	}

	text := strings.Builder{}
	text.WriteString("PRICE ALERT TRIGGERED\n")
	text.WriteString(fmt.Sprintf("Asset: %s (%s)\n", view.Name, view.Symbol))
	text.WriteString(fmt.Sprintf("Current Price: %s %s\n", view.Currency, view.Price))
	text.WriteString(fmt.Sprintf("Threshold: %s %s\n", view.Currency, view.Threshold))
	text.WriteString(fmt.Sprintf("Condition: %s\n", view.Condition))
	text.WriteString(fmt.Sprintf("Time: %s\n", view.Time))

	return Message{
		To:      t.Rule.Email,
		Subject: fmt.Sprintf("🚨 Price Alert: %s (%s)", view.Name, view.Symbol),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

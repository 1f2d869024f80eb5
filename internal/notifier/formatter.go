package notifier

import (
	"fmt"
	"html"
	"strings"

	"PriceSentinel/internal/model"
)

var severityIcon = map[model.Severity]string{
	model.SeverityCritical: "🚨",
	model.SeverityHigh:     "⚠️",
	model.SeverityMedium:   "🔔",
	model.SeverityLow:      "ℹ️",
}

var alertTitle = map[model.AlertType]string{
	model.AlertRuleConflict:     "Rule conflict",
	model.AlertStockoutRisk:     "Stockout risk",
	model.AlertPriceGap:         "Competitor price gap",
	model.AlertForecastVariance: "Forecast variance",
	model.AlertStaleObservation: "Stale observation",
	model.AlertLowConfidence:    "Low-confidence recommendation",
}

// FormatAlert renders an alert as a Telegram HTML message.
func FormatAlert(a model.Alert) string {
	var b strings.Builder

	title, ok := alertTitle[a.Type]
	if !ok {
		title = string(a.Type)
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", severityIcon[a.Severity], title, a.CreatedAt.Format("2006-01-02 15:04")))

	if len(a.ProductIDs) > 0 {
		b.WriteString(fmt.Sprintf("Products: %s\n", html.EscapeString(strings.Join(a.ProductIDs, ", "))))
	}
	if a.LocationID != "" {
		b.WriteString(fmt.Sprintf("Location: %s\n", html.EscapeString(a.LocationID)))
	}
	if len(a.CompetitorIDs) > 0 {
		b.WriteString(fmt.Sprintf("Competitors: %s\n", html.EscapeString(strings.Join(a.CompetitorIDs, ", "))))
	}
	b.WriteString("\n" + html.EscapeString(a.Message) + "\n")

	if a.Occurrences > 1 {
		b.WriteString(fmt.Sprintf("\nSeen %d times in this window\n", a.Occurrences))
	}
	if len(a.RecommendedActions) > 0 {
		b.WriteString("\n<b>Suggested:</b>\n")
		for _, act := range a.RecommendedActions {
			b.WriteString("  • " + html.EscapeString(act) + "\n")
		}
	}
	return b.String()
}

package alerts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"catalog-service/internal/models"
)

type productRow struct {
	SKU         string
	Model       string
	Description string
	Quantity    int
	Threshold   int
	Status      string
}

type lowStockData struct {
	Products    []productRow
	GeneratedAt string
}

type digestData struct {
	Title       string
	Stats       models.ProductStats
	Products    []productRow
	GeneratedAt string
}

var funcs = template.FuncMap{
	"status": func(s string) string {
		return strings.ReplaceAll(s, "_", " ")
	},
}

const productTable = `{{define "products"}}
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse:collapse;font-family:sans-serif;font-size:13px">
  <thead>
    <tr style="background:#f0f0f0">
      <th align="left">SKU</th><th align="left">Model</th><th align="left">Description</th>
      <th align="right">Quantity</th><th align="right">Threshold</th><th align="left">Status</th>
    </tr>
  </thead>
  <tbody>
  {{- range .}}
    <tr>
      <td>{{.SKU}}</td><td>{{.Model}}</td><td>{{.Description}}</td>
      <td align="right">{{.Quantity}}</td><td align="right">{{.Threshold}}</td><td>{{status .Status}}</td>
    </tr>
  {{- end}}
  </tbody>
</table>
{{end}}`

var lowStockTmpl = template.Must(template.New("low_stock").Funcs(funcs).Parse(productTable + `
<div style="font-family:sans-serif">
  <h2>Low stock alert</h2>
  <p>The following {{len .Products}} product(s) are at or below their stock threshold:</p>
  {{template "products" .Products}}
  <p style="color:#888;font-size:11px">Generated {{.GeneratedAt}}</p>
</div>`))

var digestTmpl = template.Must(template.New("digest").Funcs(funcs).Parse(productTable + `
<div style="font-family:sans-serif">
  <h2>{{.Title}}</h2>
  <ul>
    <li>Total products: <strong>{{.Stats.TotalCount}}</strong></li>
    <li>Out of stock: <strong>{{.Stats.OutOfStockCount}}</strong></li>
    <li>Low stock: <strong>{{len .Products}}</strong></li>
  </ul>
  {{if .Products}}
  {{template "products" .Products}}
  {{else}}
  <p>No products are currently low on stock.</p>
  {{end}}
  <p style="color:#888;font-size:11px">Generated {{.GeneratedAt}}</p>
</div>`))

func toRows(products []models.Product, defaultThreshold int) []productRow {
	rows := make([]productRow, 0, len(products))
	for i := range products {
		p := &products[i]
		rows = append(rows, productRow{
			SKU:         p.SKU,
			Model:       p.Model,
			Description: p.Description,
			Quantity:    p.StockQuantity,
			Threshold:   p.EffectiveThreshold(defaultThreshold),
			Status:      p.StockStatus,
		})
	}
	return rows
}

func renderLowStock(products []models.Product, defaultThreshold int, now time.Time) (subject, body string, err error) {
	var buf bytes.Buffer
	err = lowStockTmpl.Execute(&buf, lowStockData{
		Products:    toRows(products, defaultThreshold),
		GeneratedAt: now.Format(time.RFC1123),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render low stock email: %w", err)
	}
	return fmt.Sprintf("Low stock alert: %d product(s)", len(products)), buf.String(), nil
}

func renderDigest(frequency string, stats models.ProductStats, products []models.Product, defaultThreshold int, now time.Time) (subject, body string, err error) {
	title := "Daily inventory summary"
	if frequency == models.FrequencyWeekly {
		title = "Weekly inventory summary"
	}

	var buf bytes.Buffer
	err = digestTmpl.Execute(&buf, digestData{
		Title:       title,
		Stats:       stats,
		Products:    toRows(products, defaultThreshold),
		GeneratedAt: now.Format(time.RFC1123),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render digest email: %w", err)
	}
	return title, buf.String(), nil
}

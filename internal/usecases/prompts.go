package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"krishibondhu/internal/entities"
)

const (
	cropSystemPrompt      = "You are an agricultural expert specializing in Indian farming conditions."
	marketSystemPrompt    = "You are a market analyst specializing in Indian agricultural commodities."
	warehouseSystemPrompt = "You are a warehouse management expert specializing in agricultural storage."
	deliverySystemPrompt  = "You are a logistics optimization expert for agricultural deliveries."

	maxDeliveryOrdersInPrompt = 5
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func chatSystemPrompt(advisoryContext string) string {
	var sb strings.Builder
	sb.WriteString("You are an agricultural expert AI assistant for KrishiBondhu, a platform connecting farmers, customers, warehouses, and delivery partners in India.\n")
	sb.WriteString("Provide helpful, accurate, and practical advice about farming, crop management, market trends, and agricultural best practices.\n")
	sb.WriteString("Keep responses concise and actionable. Focus on Indian agricultural context and conditions.")
	if advisoryContext != "" {
		sb.WriteString("\nContext: ")
		sb.WriteString(advisoryContext)
	}
	return sb.String()
}

func cropPrompt(location, season, soilType string, weather *entities.WeatherData) string {
	var sb strings.Builder
	sb.WriteString("As an agricultural expert, recommend the top 5 crops suitable for:\n")
	fmt.Fprintf(&sb, "Location: %s\nSeason: %s\nSoil Type: %s\n", location, season, soilType)
	if weather != nil {
		fmt.Fprintf(&sb, "Current weather: %s°C, %s%% humidity, %s\n",
			formatNumber(weather.Temperature), formatNumber(weather.Humidity), weather.Description)
	}
	sb.WriteString(`
For each crop, provide:
1. Crop name
2. Suitability score (0-100)
3. Reason for recommendation
4. Best planting season
5. Expected yield per acre

Format as JSON array with fields: crop, suitability, reason, season, expectedYield`)
	return sb.String()
}

func marketPrompt(crops []string, location string) string {
	var sb strings.Builder
	sb.WriteString("Provide current market insights for these crops in India")
	if location != "" {
		fmt.Fprintf(&sb, " (%s region)", location)
	}
	sb.WriteString(":\n")
	sb.WriteString(strings.Join(crops, ", "))
	sb.WriteString(`

For each crop, provide:
1. Current market price range
2. Price trend (rising/falling/stable)
3. Market recommendation

Format as JSON array with fields: crop, currentPrice, trend, recommendation`)
	return sb.String()
}

func inventorySummary(inventory []entities.InventoryItem) string {
	return strings.Join(lo.Map(inventory, func(item entities.InventoryItem, _ int) string {
		expiry := item.ExpiryDate
		if expiry == "" {
			expiry = "N/A"
		}
		return fmt.Sprintf("%s: %s (expires: %s)", item.Name, formatNumber(item.Quantity), expiry)
	}), ", ")
}

func warehousePrompt(inventory []entities.InventoryItem, capacity float64, weather *entities.WeatherData) string {
	var sb strings.Builder
	sb.WriteString("Analyze this warehouse situation and provide optimization recommendations:\n\n")
	fmt.Fprintf(&sb, "Inventory: %s\nTotal Capacity: %s tons\n", inventorySummary(inventory), formatNumber(capacity))
	if weather != nil {
		fmt.Fprintf(&sb, "Weather: %s°C, %s%% humidity\n", formatNumber(weather.Temperature), formatNumber(weather.Humidity))
	}
	sb.WriteString(`
Provide:
1. General recommendations for better storage management
2. Storage optimization strategies
3. Any alerts or urgent actions needed

Focus on maximizing efficiency, preventing spoilage, and optimizing space utilization.`)
	return sb.String()
}

func orderSummary(orders []entities.DeliveryOrder) string {
	if len(orders) > maxDeliveryOrdersInPrompt {
		orders = orders[:maxDeliveryOrdersInPrompt]
	}
	return strings.Join(lo.Map(orders, func(o entities.DeliveryOrder, _ int) string {
		return fmt.Sprintf("Order %s: %s (%d items)", o.ID, o.Destination, o.Items)
	}), ", ")
}

func deliveryPrompt(orders []entities.DeliveryOrder, location string, weather *entities.WeatherData) string {
	var sb strings.Builder
	sb.WriteString("Optimize delivery operations for:\n\n")
	fmt.Fprintf(&sb, "Base Location: %s\nOrders: %s\n", location, orderSummary(orders))
	if weather != nil {
		fmt.Fprintf(&sb, "Weather: %s, %s°C\n", weather.Description, formatNumber(weather.Temperature))
	}
	sb.WriteString(`
Provide:
1. Route optimization recommendations
2. Time optimization strategies
3. Weather-related alerts or precautions

Focus on efficiency, fuel savings, and customer satisfaction.`)
	return sb.String()
}

package entities

import "time"

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Trends lists every valid market trend.
var Trends = []Trend{TrendRising, TrendFalling, TrendStable}

// Valid reports whether t is one of the known trends.
func (t Trend) Valid() bool {
	switch t {
	case TrendRising, TrendFalling, TrendStable:
		return true
	}
	return false
}

type CropRecommendation struct {
	Crop          string `json:"crop"`
	Suitability   int    `json:"suitability"` // 0-100
	Reason        string `json:"reason"`
	Season        string `json:"season"`
	ExpectedYield string `json:"expectedYield"`
}

type MarketInsight struct {
	Crop           string `json:"crop"`
	CurrentPrice   string `json:"currentPrice"` // e.g. "৳25-80/kg"
	Trend          Trend  `json:"trend"`
	Recommendation string `json:"recommendation"`
}

type WarehouseAdvice struct {
	Recommendations     []string `json:"recommendations"`
	StorageOptimization []string `json:"storageOptimization"`
	Alerts              []string `json:"alerts"`
}

type DeliveryAdvice struct {
	RouteRecommendations []string `json:"routeRecommendations"`
	TimeOptimization     []string `json:"timeOptimization"`
	WeatherAlerts        []string `json:"weatherAlerts"`
}

// WeatherData is optional context for crop, warehouse and delivery prompts.
type WeatherData struct {
	Temperature float64 `json:"temperature"` // Celsius
	Humidity    float64 `json:"humidity"`    // Percent
	Description string  `json:"description"`
}

type InventoryItem struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	ExpiryDate string  `json:"expiryDate,omitempty"` // Rendered as "N/A" when empty
}

type DeliveryOrder struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Items       int    `json:"items"`
}

// Operation names an advisory operation in logs and the usage log.
type Operation string

const (
	OperationChat      Operation = "chat"
	OperationCrops     Operation = "crops"
	OperationMarket    Operation = "market"
	OperationWarehouse Operation = "warehouse"
	OperationDelivery  Operation = "delivery"
)

// UsageRecord is one advisory call as written to the usage log.
type UsageRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Operation Operation `json:"operation"`
	Model     string    `json:"model"`
	Fallback  bool      `json:"fallback"`
	Failure   string    `json:"failure,omitempty"` // Failure class when Fallback is set
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageSummary aggregates the usage log per operation.
type UsageSummary struct {
	Operation Operation `json:"operation"`
	Total     int       `json:"total"`
	Fallbacks int       `json:"fallbacks"`
}

package usecases

import (
	"fmt"
	"strings"

	"krishibondhu/internal/entities"
)

const (
	chatApology = "I apologize, but I am unable to process your request at the moment. Please try again later."

	marketFallbackRecommendation = "Monitor market trends closely and plan harvesting timing accordingly"
	fallbackCropCount            = 3
	fallbackMarketCount          = 3
)

var seasonalCrops = map[string][]entities.CropRecommendation{
	"kharif": {
		{Crop: "Rice", Suitability: 85, Reason: "High water availability and suitable climate", Season: "Kharif", ExpectedYield: "4-6 tons/acre"},
		{Crop: "Cotton", Suitability: 80, Reason: "Good for warm weather and moderate rainfall", Season: "Kharif", ExpectedYield: "2-3 tons/acre"},
		{Crop: "Sugarcane", Suitability: 75, Reason: "Suitable for tropical climate", Season: "Kharif", ExpectedYield: "40-50 tons/acre"},
	},
	"rabi": {
		{Crop: "Wheat", Suitability: 90, Reason: "Ideal winter crop with good market demand", Season: "Rabi", ExpectedYield: "3-4 tons/acre"},
		{Crop: "Barley", Suitability: 80, Reason: "Drought resistant and suitable for cooler months", Season: "Rabi", ExpectedYield: "2-3 tons/acre"},
		{Crop: "Mustard", Suitability: 75, Reason: "Good oilseed crop for winter season", Season: "Rabi", ExpectedYield: "1-1.5 tons/acre"},
	},
}

// FallbackCropRecommendations returns the fixed seasonal table for season ("kharif" or "rabi",
// case-insensitive). Any other season gets the kharif table.
func FallbackCropRecommendations(season string) []entities.CropRecommendation {
	bucket, ok := seasonalCrops[strings.ToLower(strings.TrimSpace(season))]
	if !ok {
		bucket = seasonalCrops["kharif"]
	}
	out := make([]entities.CropRecommendation, min(fallbackCropCount, len(bucket)))
	copy(out, bucket)
	return out
}

// FallbackMarketInsights builds one synthetic insight for each of the first three crops.
func FallbackMarketInsights(crops []string, rnd RandSource) []entities.MarketInsight {
	if len(crops) > fallbackMarketCount {
		crops = crops[:fallbackMarketCount]
	}
	out := make([]entities.MarketInsight, 0, len(crops))
	for _, crop := range crops {
		low := rnd.Intn(50) + 20
		high := rnd.Intn(100) + 50
		out = append(out, entities.MarketInsight{
			Crop:           crop,
			CurrentPrice:   fmt.Sprintf("৳%d-%d/kg", low, high),
			Trend:          entities.Trends[rnd.Intn(len(entities.Trends))],
			Recommendation: marketFallbackRecommendation,
		})
	}
	return out
}

func fallbackWarehouseAdvice() entities.WarehouseAdvice {
	return entities.WarehouseAdvice{
		Recommendations:     []string{"Monitor temperature and humidity regularly", "Implement FIFO inventory rotation"},
		StorageOptimization: []string{"Optimize space utilization", "Separate products by storage requirements"},
		Alerts:              []string{"Check for products nearing expiry"},
	}
}

func fallbackDeliveryAdvice() entities.DeliveryAdvice {
	return entities.DeliveryAdvice{
		RouteRecommendations: []string{"Plan routes to minimize travel time", "Group nearby deliveries"},
		TimeOptimization:     []string{"Start early morning deliveries", "Avoid peak traffic hours"},
		WeatherAlerts:        []string{"Check weather conditions before departure"},
	}
}

package http

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"krishibondhu/internal/entities"
)

// Input validation constants
const (
	MaxChatMessageLength = 4000
	MaxContextLength     = 4000
	MaxFieldLength       = 128
	MaxModelLength       = 128
	MaxMarketCrops       = 20
	MaxInventoryItems    = 200
	MaxDeliveryOrders    = 200
)

var (
	modelPattern     = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)
	requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
	Model   string `json:"model"`
}

type cropsRequest struct {
	Location string                `json:"location"`
	Season   string                `json:"season"`
	SoilType string                `json:"soilType"`
	Weather  *entities.WeatherData `json:"weather"`
}

type marketRequest struct {
	Crops    []string `json:"crops"`
	Location string   `json:"location"`
}

type warehouseRequest struct {
	Inventory []entities.InventoryItem `json:"inventory"`
	Capacity  float64                  `json:"capacity"`
	Weather   *entities.WeatherData    `json:"weather"`
}

type deliveryRequest struct {
	Orders   []entities.DeliveryOrder `json:"orders"`
	Location string                   `json:"location"`
	Weather  *entities.WeatherData    `json:"weather"`
}

// ValidModel checks an OpenRouter model slug such as "anthropic/claude-3.5-sonnet"
func ValidModel(s string) bool {
	return s != "" && len(s) <= MaxModelLength && modelPattern.MatchString(s)
}

// ValidRequestID checks a caller-supplied request ID before it is echoed back
func ValidRequestID(s string) bool {
	return requestIDPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}

// ValidateLength checks if string is within bounds, counted in characters
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}

func (r *chatRequest) normalize() string {
	r.Message = SanitizeString(r.Message)
	r.Context = SanitizeString(r.Context)
	r.Model = strings.TrimSpace(r.Model)

	switch {
	case !ValidateLength(r.Message, 1, MaxChatMessageLength):
		return "message must be between 1 and 4000 characters"
	case !ValidateLength(r.Context, 0, MaxContextLength):
		return "context must be at most 4000 characters"
	case r.Model != "" && !ValidModel(r.Model):
		return "invalid model"
	}
	return ""
}

func (r *cropsRequest) normalize() string {
	r.Location = SanitizeString(r.Location)
	r.Season = SanitizeString(r.Season)
	r.SoilType = SanitizeString(r.SoilType)

	if !ValidateLength(r.Location, 1, MaxFieldLength) ||
		!ValidateLength(r.Season, 1, MaxFieldLength) ||
		!ValidateLength(r.SoilType, 1, MaxFieldLength) {
		return "location, season and soilType are required"
	}
	return ""
}

func (r *marketRequest) normalize() string {
	r.Crops = lo.Compact(lo.Map(r.Crops, func(c string, _ int) string { return SanitizeString(c) }))
	r.Location = SanitizeString(r.Location)

	switch {
	case len(r.Crops) == 0 || len(r.Crops) > MaxMarketCrops:
		return "crops must list between 1 and 20 crop names"
	case lo.SomeBy(r.Crops, func(c string) bool { return !ValidateLength(c, 1, MaxFieldLength) }):
		return "crop names must be at most 128 characters"
	case !ValidateLength(r.Location, 0, MaxFieldLength):
		return "location must be at most 128 characters"
	}
	return ""
}

func (r *warehouseRequest) normalize() string {
	for i := range r.Inventory {
		r.Inventory[i].Name = SanitizeString(r.Inventory[i].Name)
		r.Inventory[i].ExpiryDate = SanitizeString(r.Inventory[i].ExpiryDate)
	}

	switch {
	case r.Capacity <= 0:
		return "capacity must be greater than zero"
	case len(r.Inventory) > MaxInventoryItems:
		return "inventory must have at most 200 items"
	case lo.SomeBy(r.Inventory, func(it entities.InventoryItem) bool {
		return !ValidateLength(it.Name, 1, MaxFieldLength) || it.Quantity < 0
	}):
		return "inventory items need a name and a non-negative quantity"
	}
	return ""
}

func (r *deliveryRequest) normalize() string {
	r.Location = SanitizeString(r.Location)
	for i := range r.Orders {
		r.Orders[i].ID = SanitizeString(r.Orders[i].ID)
		r.Orders[i].Destination = SanitizeString(r.Orders[i].Destination)
	}

	switch {
	case !ValidateLength(r.Location, 1, MaxFieldLength):
		return "location is required"
	case len(r.Orders) > MaxDeliveryOrders:
		return "orders must have at most 200 entries"
	case lo.SomeBy(r.Orders, func(o entities.DeliveryOrder) bool { return o.Items < 0 }):
		return "order item counts must be non-negative"
	}
	return ""
}

package usecases

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/interfaces"
)

const maxCropRecommendations = 5

// RandSource supplies the randomness used by the market-insight fallback.
type RandSource interface {
	Intn(n int) int
}

// AdvisoryService turns marketplace requests into completion prompts and always returns a
// well-formed result. Remote and parse failures are logged and replaced with local fallbacks;
// no operation returns an error. Safe for concurrent use.
type AdvisoryService struct {
	client interfaces.CompletionClient
	usage  interfaces.UsageStore
	logger *zap.Logger

	rndMu sync.Mutex
	rnd   RandSource
}

type Option func(*AdvisoryService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *AdvisoryService) { s.logger = logger }
}

// WithUsageStore records every operation in store. Recording errors are logged only.
func WithUsageStore(store interfaces.UsageStore) Option {
	return func(s *AdvisoryService) { s.usage = store }
}

func WithRandSource(rnd RandSource) Option {
	return func(s *AdvisoryService) { s.rnd = rnd }
}

func NewAdvisoryService(client interfaces.CompletionClient, opts ...Option) *AdvisoryService {
	s := &AdvisoryService{
		client: client,
		logger: zap.NewNop(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetChatResponse answers a free-form question. advisoryContext is appended to the system
// prompt verbatim; an empty model uses the client default.
func (s *AdvisoryService) GetChatResponse(ctx context.Context, userMessage, advisoryContext, model string) entities.AdvisoryReply {
	if model == "" {
		model = s.client.DefaultModel()
	}
	start := time.Now()
	text, err := s.complete(ctx, entities.OperationChat, model, chatSystemPrompt(advisoryContext), userMessage)
	s.record(ctx, entities.OperationChat, model, start, err)
	if err != nil {
		return entities.AdvisoryReply{Message: chatApology, Suggestions: []string{}}
	}
	return entities.AdvisoryReply{Message: text, Suggestions: ExtractSuggestions(text)}
}

// GetCropRecommendations returns up to five crops for the location, season and soil. weather
// may be nil.
func (s *AdvisoryService) GetCropRecommendations(ctx context.Context, location, season, soilType string, weather *entities.WeatherData) []entities.CropRecommendation {
	model := s.client.DefaultModel()
	start := time.Now()
	text, err := s.complete(ctx, entities.OperationCrops, model, cropSystemPrompt, cropPrompt(location, season, soilType, weather))
	if err == nil {
		var recs []entities.CropRecommendation
		if recs, err = parseCropRecommendations(text); err == nil {
			s.record(ctx, entities.OperationCrops, model, start, nil)
			return recs
		}
		s.logger.Warn("failed to parse crop recommendations response, using fallback", zap.Error(err))
	}
	s.record(ctx, entities.OperationCrops, model, start, err)
	return FallbackCropRecommendations(season)
}

// GetMarketInsights returns one insight per requested crop. location may be empty.
func (s *AdvisoryService) GetMarketInsights(ctx context.Context, crops []string, location string) []entities.MarketInsight {
	model := s.client.DefaultModel()
	start := time.Now()
	text, err := s.complete(ctx, entities.OperationMarket, model, marketSystemPrompt, marketPrompt(crops, location))
	if err == nil {
		var insights []entities.MarketInsight
		if insights, err = parseMarketInsights(text, len(crops)); err == nil {
			s.record(ctx, entities.OperationMarket, model, start, nil)
			return insights
		}
		s.logger.Warn("failed to parse market insights response, using fallback", zap.Error(err))
	}
	s.record(ctx, entities.OperationMarket, model, start, err)

	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return FallbackMarketInsights(crops, s.rnd)
}

// GetWarehouseOptimization advises on storage for the inventory. weather may be nil.
func (s *AdvisoryService) GetWarehouseOptimization(ctx context.Context, inventory []entities.InventoryItem, capacity float64, weather *entities.WeatherData) entities.WarehouseAdvice {
	model := s.client.DefaultModel()
	start := time.Now()
	text, err := s.complete(ctx, entities.OperationWarehouse, model, warehouseSystemPrompt, warehousePrompt(inventory, capacity, weather))
	s.record(ctx, entities.OperationWarehouse, model, start, err)
	if err != nil {
		return fallbackWarehouseAdvice()
	}
	return ParseWarehouseAdvice(text)
}

// GetDeliveryOptimization advises on routes for up to the first five orders. weather may be nil.
func (s *AdvisoryService) GetDeliveryOptimization(ctx context.Context, orders []entities.DeliveryOrder, location string, weather *entities.WeatherData) entities.DeliveryAdvice {
	model := s.client.DefaultModel()
	start := time.Now()
	text, err := s.complete(ctx, entities.OperationDelivery, model, deliverySystemPrompt, deliveryPrompt(orders, location, weather))
	s.record(ctx, entities.OperationDelivery, model, start, err)
	if err != nil {
		return fallbackDeliveryAdvice()
	}
	return ParseDeliveryAdvice(text)
}

// complete performs the single remote attempt for an operation. A blank reply is treated as
// a malformed response.
func (s *AdvisoryService) complete(ctx context.Context, op entities.Operation, model, systemPrompt, userPrompt string) (string, error) {
	messages := []entities.ChatMessage{
		{Role: entities.RoleSystem, Content: systemPrompt},
		{Role: entities.RoleUser, Content: userPrompt},
	}
	text, err := s.client.Complete(ctx, messages, model)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.Wrap(entities.ErrMalformedResponse, "blank completion")
	}
	if err != nil {
		s.logger.Error("error calling AI API",
			zap.String("operation", string(op)),
			zap.String("model", model),
			zap.String("failure", entities.FailureClass(err)),
			zap.Error(err))
		return "", err
	}
	return text, nil
}

func (s *AdvisoryService) record(ctx context.Context, op entities.Operation, model string, start time.Time, failure error) {
	if s.usage == nil {
		return
	}
	rec := entities.UsageRecord{
		UserID:    UserIDFromContext(ctx),
		Operation: op,
		Model:     model,
		Fallback:  failure != nil,
		Failure:   entities.FailureClass(failure),
		LatencyMS: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	// The request context may already be cancelled; the record should still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.usage.Record(recordCtx, rec); err != nil {
		s.logger.Warn("failed to record advisory usage", zap.String("operation", string(op)), zap.Error(err))
	}
}

// cropReply is a crop entry as the model writes it. Suitability may be fractional or a
// numeric string.
type cropReply struct {
	Crop          string      `json:"crop"`
	Suitability   json.Number `json:"suitability"`
	Reason        string      `json:"reason"`
	Season        string      `json:"season"`
	ExpectedYield string      `json:"expectedYield"`
}

// suitabilityScore rounds a model score to an integer in 0..100. A missing score is 0.
func suitabilityScore(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) {
		return 0, errors.Mark(errors.Newf("suitability %q is not a number", string(n)), entities.ErrParse)
	}
	return int(math.Round(max(0, min(100, f)))), nil
}

func parseCropRecommendations(text string) ([]entities.CropRecommendation, error) {
	replies, err := ExtractJSONArray[cropReply](text)
	if err != nil {
		return nil, err
	}
	out := make([]entities.CropRecommendation, 0, min(len(replies), maxCropRecommendations))
	for _, r := range replies {
		if strings.TrimSpace(r.Crop) == "" {
			continue
		}
		score, err := suitabilityScore(r.Suitability)
		if err != nil {
			return nil, err
		}
		out = append(out, entities.CropRecommendation{
			Crop:          r.Crop,
			Suitability:   score,
			Reason:        r.Reason,
			Season:        r.Season,
			ExpectedYield: r.ExpectedYield,
		})
		if len(out) == maxCropRecommendations {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.Mark(errors.New("crop recommendations carry no crop names"), entities.ErrParse)
	}
	return out, nil
}

func parseMarketInsights(text string, requested int) ([]entities.MarketInsight, error) {
	insights, err := ExtractJSONArray[entities.MarketInsight](text)
	if err != nil {
		return nil, err
	}
	out := make([]entities.MarketInsight, 0, len(insights))
	for _, in := range insights {
		if strings.TrimSpace(in.Crop) == "" {
			continue
		}
		in.Trend = entities.Trend(strings.ToLower(string(in.Trend)))
		if !in.Trend.Valid() {
			in.Trend = entities.TrendStable
		}
		out = append(out, in)
	}
	if requested > 0 && len(out) > requested {
		out = out[:requested]
	}
	if len(out) == 0 {
		return nil, errors.Mark(errors.New("market insights carry no crop names"), entities.ErrParse)
	}
	return out, nil
}

// Package generator produces synthetic Google Ads interaction batches.
package generator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aura-marketing/etl/internal/models"
)

// DefaultBatchSize is used when a non-positive count is requested.
const DefaultBatchSize = 10

// Field bounds (inclusive).
const (
	AdIDMin, AdIDMax             = 1000, 9999
	CampaignIDMin, CampaignIDMax = 100, 999
	UserIDMin, UserIDMax         = 1, 50
	CostMin, CostMax             = 1.0, 100.0
	RevenueMin, RevenueMax       = 1.0, 150.0
	ImpressionsMin               = 100
	ImpressionsMax               = 10000
	ClicksMin, ClicksMax         = 1, 100
	ConversionsMin               = 0
	ConversionsMax               = 10
	RateMin, RateMax             = 0.0, 100.0
	CampaignMin, CampaignMax     = 1, 5
)

// Generator builds AdEventRecords from an injected random source and clock.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// New creates a generator. A nil src seeds from the runtime; a nil now uses time.Now.
func New(src rand.Source, now func() time.Time) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{rnd: rand.New(src), now: now}
}

// NewSeeded creates a generator with a deterministic PCG source.
func NewSeeded(seed uint64, now func() time.Time) *Generator {
	return New(rand.NewPCG(seed, seed), now)
}

// Generate returns count records in generation order.
func (g *Generator) Generate(count int) []models.AdEventRecord {
	if count < 1 {
		count = DefaultBatchSize
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]models.AdEventRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, g.record())
	}
	return records
}

func (g *Generator) record() models.AdEventRecord {
	// click_time and created_at share one instant per record, at seconds resolution.
	ts := g.now().UTC().Truncate(time.Second)
	return models.AdEventRecord{
		AdID:           fmt.Sprintf("ad_%d", g.intRange(AdIDMin, AdIDMax)),
		CampaignID:     fmt.Sprintf("camp_%d", g.intRange(CampaignIDMin, CampaignIDMax)),
		UserID:         fmt.Sprintf("user_%d", g.intRange(UserIDMin, UserIDMax)),
		ClickTime:      ts,
		Cost:           g.amount(CostMin, CostMax),
		Revenue:        g.amount(RevenueMin, RevenueMax),
		DeviceType:     g.choice(models.DeviceTypes),
		Location:       g.choice(models.Locations),
		Impressions:    g.intRange(ImpressionsMin, ImpressionsMax),
		Clicks:         g.intRange(ClicksMin, ClicksMax),
		Conversions:    g.intRange(ConversionsMin, ConversionsMax),
		ConversionRate: g.amount(RateMin, RateMax),
		CampaignName:   fmt.Sprintf("Campaign %d", g.intRange(CampaignMin, CampaignMax)),
		AdType:         g.choice(models.AdTypes),
		AdGroup:        "Group " + g.choice(models.AdGroups),
		CreatedAt:      ts,
	}
}

func (g *Generator) intRange(lo, hi int) int {
	return lo + g.rnd.IntN(hi-lo+1)
}

func (g *Generator) amount(lo, hi float64) float64 {
	return round2(lo + (hi-lo)*g.rnd.Float64())
}

func (g *Generator) choice(values []string) string {
	return values[g.rnd.IntN(len(values))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

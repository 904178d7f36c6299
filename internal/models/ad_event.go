package models

import "time"

// Device types.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// Ad types.
const (
	AdTypeText  = "text"
	AdTypeImage = "image"
)

var (
	// DeviceTypes are the allowed device_type values.
	DeviceTypes = []string{DeviceMobile, DeviceDesktop}
	// Locations are the allowed location values.
	Locations = []string{"New York", "Los Angeles", "Chicago"}
	// AdTypes are the allowed ad_type values.
	AdTypes = []string{AdTypeText, AdTypeImage}
	// AdGroups are the allowed ad_group suffixes ("Group A" .. "Group D").
	AdGroups = []string{"A", "B", "C", "D"}
)

// AdEventRecord is one synthetic ad interaction row of the raw_google_ads staging table.
// Counters and conversion_rate are independently random; no relationship between them is enforced.
type AdEventRecord struct {
	AdID           string    `json:"ad_id" db:"ad_id"`
	CampaignID     string    `json:"campaign_id" db:"campaign_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ClickTime      time.Time `json:"click_time" db:"click_time"`
	Cost           float64   `json:"cost" db:"cost"`
	Revenue        float64   `json:"revenue" db:"revenue"`
	DeviceType     string    `json:"device_type" db:"device_type"`
	Location       string    `json:"location" db:"location"`
	Impressions    int       `json:"impressions" db:"impressions"`
	Clicks         int       `json:"clicks" db:"clicks"`
	Conversions    int       `json:"conversions" db:"conversions"`
	ConversionRate float64   `json:"conversion_rate" db:"conversion_rate"`
	CampaignName   string    `json:"campaign_name" db:"campaign_name"`
	AdType         string    `json:"ad_type" db:"ad_type"`
	AdGroup        string    `json:"ad_group" db:"ad_group"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AdEventColumns is the destination column list, in the order Values returns them.
var AdEventColumns = []string{
	"ad_id", "campaign_id", "user_id", "click_time", "cost", "revenue",
	"device_type", "location", "impressions", "clicks",
	"conversions", "conversion_rate", "campaign_name", "ad_type",
	"ad_group", "created_at",
}

// Values returns the row arguments matching AdEventColumns.
func (r AdEventRecord) Values() []any {
	return []any{
		r.AdID, r.CampaignID, r.UserID, r.ClickTime, r.Cost, r.Revenue,
		r.DeviceType, r.Location, r.Impressions, r.Clicks,
		r.Conversions, r.ConversionRate, r.CampaignName, r.AdType,
		r.AdGroup, r.CreatedAt,
	}
}

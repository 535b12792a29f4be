// Package domain holds the report server DTOs and ports
package domain

// Report kinds accepted on the wire
const (
	KindStages  = "stages"
	KindPrimary = "primary"
)

// ReportInput selects one accumulation page
type ReportInput struct {
	Kind     string `json:"kind"      validate:"required,oneof=stages primary"`
	ConfigID string `json:"config_id" validate:"required,max=64,excludesall=/\\."`
	Limit    int    `json:"limit"     validate:"gte=0,lte=5000"`
	Offset   int    `json:"offset"    validate:"gte=0"`
}

// Report is one page of an accumulation
type Report struct {
	Kind     string              `json:"kind"      example:"stages"`
	ConfigID string              `json:"config_id" example:"118"`
	Columns  []string            `json:"columns"`
	Rows     []map[string]string `json:"rows"`
	Total    int                 `json:"total"     example:"42"`
	Limit    int                 `json:"limit"     example:"100"`
	Offset   int                 `json:"offset"    example:"0"`
}

// WatermarkRow is one order watermark rendered in the calendar zone
type WatermarkRow struct {
	OrderID   string `json:"order_id"  example:"5521"`
	Watermark string `json:"watermark" example:"2024-03-04T10:00:00-03:00"`
}

// WatermarkList lists the watermarks of one configuration
type WatermarkList struct {
	ConfigID string         `json:"config_id" example:"118"`
	Orders   []WatermarkRow `json:"orders"`
}

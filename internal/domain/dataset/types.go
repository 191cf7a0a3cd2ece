package dataset

import "time"

// Summary is a dataset as listed by the backend, without its records.
type Summary struct {
	ID             int            `json:"id"`
	Filename       string         `json:"filename"`
	UploadedAt     time.Time      `json:"uploaded_at"`
	Username       string         `json:"username"`
	TotalCount     int            `json:"total_count"`
	AvgFlowrate    float64        `json:"avg_flowrate"`
	AvgPressure    float64        `json:"avg_pressure"`
	AvgTemperature float64        `json:"avg_temperature"`
	EquipmentTypes map[string]int `json:"equipment_types"`
}

// Dataset is the detail view including every equipment record.
type Dataset struct {
	Summary
	Records []EquipmentRecord `json:"records"`
}

type EquipmentRecord struct {
	ID            int     `json:"id"`
	EquipmentName string  `json:"equipment_name"`
	EquipmentType string  `json:"equipment_type"`
	Flowrate      float64 `json:"flowrate"`
	Pressure      float64 `json:"pressure"`
	Temperature   float64 `json:"temperature"`
}

// ChartPoint is one bar or slice of a chart.
type ChartPoint struct {
	Label string
	Value float64
}

// ChartData holds the two series the dashboard draws for a dataset.
type ChartData struct {
	Distribution []ChartPoint
	Averages     []ChartPoint
}

package dataset

import "sort"

// Chart derives the equipment type distribution, largest first, and the
// three averages of s.
func Chart(s Summary) ChartData {
	dist := make([]ChartPoint, 0, len(s.EquipmentTypes))
	for label, count := range s.EquipmentTypes {
		dist = append(dist, ChartPoint{Label: label, Value: float64(count)})
	}
	sort.Slice(dist, func(i, j int) bool {
		if dist[i].Value != dist[j].Value {
			return dist[i].Value > dist[j].Value
		}
		return dist[i].Label < dist[j].Label
	})

	return ChartData{
		Distribution: dist,
		Averages: []ChartPoint{
			{Label: "Flowrate", Value: s.AvgFlowrate},
			{Label: "Pressure", Value: s.AvgPressure},
			{Label: "Temperature", Value: s.AvgTemperature},
		},
	}
}

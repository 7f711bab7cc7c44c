// Package geo содержит географические вычисления для подбора доноров и банков крови.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusKm — средний радиус Земли в километрах.
const earthRadiusKm = 6371.0

// DistanceKm вычисляет расстояние по дуге большого круга между двумя точками
// по формуле гаверсинусов. Результат не округляется, округление — забота вызывающего.
func DistanceKm(lat1, lon1, lat2, lon2 float64) (float64, error) {
	for _, lat := range []float64{lat1, lat2} {
		if lat < -90 || lat > 90 {
			return 0, fmt.Errorf("latitude out of range: %v", lat)
		}
	}
	for _, lon := range []float64{lon1, lon2} {
		if lon < -180 || lon > 180 {
			return 0, fmt.Errorf("longitude out of range: %v", lon)
		}
	}

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c, nil
}

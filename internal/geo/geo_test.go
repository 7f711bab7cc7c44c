package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		wantErr                bool
	}{
		{
			name: "same point",
			want: 0,
		},
		{
			name: "quarter great circle along equator",
			lon2: 90,
			want: 10007.54,
		},
		{
			name: "equator to pole",
			lat2: 90,
			want: 10007.54,
		},
		{
			name: "moscow to saint petersburg",
			lat1: 55.7558, lon1: 37.6173,
			lat2: 59.9343, lon2: 30.3351,
			want: 634.5,
		},
		{
			name: "latitude out of range",
			lat1: 91,
			wantErr: true,
		},
		{
			name: "longitude out of range",
			lon2: -181,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got distance %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DistanceKm error: %v", err)
			}
			if math.Abs(got-tt.want) > 1.0 {
				t.Fatalf("DistanceKm = %v, want ~%v", got, tt.want)
			}
		})
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	a, err := DistanceKm(12.97, 77.59, 28.61, 77.21)
	if err != nil {
		t.Fatalf("DistanceKm error: %v", err)
	}
	b, err := DistanceKm(28.61, 77.21, 12.97, 77.59)
	if err != nil {
		t.Fatalf("DistanceKm error: %v", err)
	}
	if a != b {
		t.Fatalf("distance is not symmetric: %v != %v", a, b)
	}
}

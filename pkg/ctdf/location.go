package ctdf

import "fmt"

// BoundingBox is an inclusive WGS84 latitude/longitude box
type BoundingBox struct {
	MinLatitude  float64 `yaml:"min_latitude" validate:"gte=-90,lte=90"`
	MinLongitude float64 `yaml:"min_longitude" validate:"gte=-180,lte=180"`
	MaxLatitude  float64 `yaml:"max_latitude" validate:"gte=-90,lte=90,gtefield=MinLatitude"`
	MaxLongitude float64 `yaml:"max_longitude" validate:"gte=-180,lte=180,gtefield=MinLongitude"`
}

func (b BoundingBox) Contains(latitude float64, longitude float64) bool {
	return latitude >= b.MinLatitude && latitude <= b.MaxLatitude &&
		longitude >= b.MinLongitude && longitude <= b.MaxLongitude
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%f,%f -> %f,%f]", b.MinLatitude, b.MinLongitude, b.MaxLatitude, b.MaxLongitude)
}

package ctdf

import (
	"fmt"
	"time"
)

// PositionRecord is one observed position of one vehicle at one instant.
// Records are never modified once stored, a later observation is a new record.
type PositionRecord struct {
	VehicleID   string     `json:"vehicle_id" bson:"vehicleid" gorm:"primaryKey;column:vehicle_id" groups:"basic"`
	RouteID     *string    `json:"route_id" bson:"routeid" gorm:"column:route_id;index" groups:"basic"`
	RouteType   *RouteType `json:"route_type" bson:"routetype" gorm:"column:route_type" groups:"basic"`
	RunID       *string    `json:"run_id,omitempty" bson:"runid,omitempty" gorm:"column:run_id" groups:"detailed"`
	Latitude    float64    `json:"latitude" bson:"latitude" gorm:"column:latitude" groups:"basic"`
	Longitude   float64    `json:"longitude" bson:"longitude" gorm:"column:longitude" groups:"basic"`
	Heading     *int       `json:"heading" bson:"heading" gorm:"column:heading" groups:"basic"`
	DirectionID *int       `json:"direction_id" bson:"directionid" gorm:"column:direction_id" groups:"basic"`
	Timestamp   time.Time  `json:"timestamp" bson:"timestamp" gorm:"primaryKey;column:timestamp;index" groups:"basic"`

	DataSource *DataSource `json:"datasource,omitempty" bson:"datasource,omitempty" gorm:"-" groups:"internal"`
}

func (PositionRecord) TableName() string {
	return "vehicle_locations"
}

// Key identifies the observation, two records with the same key are the same observation
func (p *PositionRecord) Key() PositionKey {
	return PositionKey{VehicleID: p.VehicleID, Timestamp: p.Timestamp.UnixNano()}
}

func (p *PositionRecord) HasRoute() bool {
	return p.RouteID != nil && *p.RouteID != "" && p.RouteType != nil
}

func (p *PositionRecord) String() string {
	return fmt.Sprintf("%s@%s (%f,%f)", p.VehicleID, p.Timestamp.Format(time.RFC3339), p.Latitude, p.Longitude)
}

type PositionKey struct {
	VehicleID string
	Timestamp int64
}

package ctdf

type DataSource struct {
	OriginalFormat string `groups:"internal"` // ptv-json or gtfs-rt
	Provider       string `groups:"internal"`
	DatasetID      string `groups:"internal"`
}

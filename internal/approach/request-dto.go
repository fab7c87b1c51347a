package approach

import "time"

// LocationSample is one item of a batched location update.
type LocationSample struct {
	Latitude  float64   `json:"lat" binding:"required,min=-90,max=90"`
	Longitude float64   `json:"lng" binding:"required,min=-180,max=180"`
	Accuracy  float64   `json:"accuracy" binding:"min=0"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
}

// LocationBatchRequest carries the device's buffered samples.
type LocationBatchRequest struct {
	Updates []LocationSample `json:"updates" binding:"required,min=1,max=50,dive"`
}

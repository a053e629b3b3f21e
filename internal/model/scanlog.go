package model

import "time"

// ScanLogEntry is an append-only audit record of a completed scan. It has a
// lifecycle independent from ProductRecord and is only read back by the
// recent-scans listing.
type ScanLogEntry struct {
	ID          string    `json:"id,omitempty"`
	Barcode     string    `json:"barcode"`
	ProductName string    `json:"name"`
	SafetyScore *float64  `json:"safetyScore"`
	Region      string    `json:"region"`
	UserID      string    `json:"userId,omitempty"`
	LoggedAt    time.Time `json:"loggedAt"`
}

package rules

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// KenyaBounds is the box every planting coordinate must fall inside.
var KenyaBounds = Bounds{
	MinLat: -4.67677,
	MaxLat: 4.89973,
	MinLon: 29.0,
	MaxLon: 41.9,
}

var regions = []string{
	"Nairobi",
	"Coast",
	"North Eastern",
	"Eastern",
	"Central",
	"Rift Valley",
	"Western",
	"Nyanza",
}

var treeTypes = []string{
	"Acacia",
	"Mukuyu",
	"Mango",
	"Avocado",
	"Cypress",
	"Pine",
	"Eucalyptus",
	"Baobab",
	"Neem",
	"Cedar",
	"Teak",
	"Mahogany",
	"Jacaranda",
	"Coconut",
	"Mulberry",
	"Grevillea",
	"Indigenous",
	"Fruit Tree",
	"Forest Tree",
}

var (
	scientificNameRe = regexp.MustCompile(`^[A-Z][a-z]+ [a-z]+`)
	dataURIRe        = regexp.MustCompile(`^data:image/(jpeg|jpg|png|gif|webp);base64,`)
	imageExtRe       = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
)

// IsValidRegion reports whether region is an exact match in the region whitelist.
func IsValidRegion(region string) bool {
	return slices.Contains(regions, region)
}

// IsValidTreeType reports whether t is an exact match in the tree type whitelist.
func IsValidTreeType(t string) bool {
	return slices.Contains(treeTypes, t)
}

// IsValidScientificName checks the "Genus species" prefix.
func IsValidScientificName(name string) bool {
	return scientificNameRe.MatchString(name)
}

// IsValidImage accepts base64 data URIs, http(s) URLs and relative paths
// that name a jpeg, png, gif or webp image.
func IsValidImage(s string) bool {
	if strings.HasPrefix(s, "data:image") {
		return dataURIRe.MatchString(s)
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return false
		}
		return imageExtRe.MatchString(s)
	}

	return imageExtRe.MatchString(s)
}

// InKenyaBounds reports whether the coordinate lies inside KenyaBounds, inclusive.
func InKenyaBounds(lat, lon float64) bool {
	b := KenyaBounds
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// IsValidGPSCoordinate checks the global ranges and then KenyaBounds.
func IsValidGPSCoordinate(lat, lon float64) bool {
	if lat < -90 || lat > 90 {
		return false
	}
	if lon < -180 || lon > 180 {
		return false
	}
	return InKenyaBounds(lat, lon)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// IsValidTimestamp reports whether ts parses as an ISO-8601 style date or timestamp.
func IsValidTimestamp(ts string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, ts); err == nil {
			return true
		}
	}
	return false
}

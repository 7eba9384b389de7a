// Package rules implements the deterministic pre-validation checks that run
// before AI consensus: structure, data quality, business rules, GPS bounds
// and image format. Every check is pure and synchronous.
package rules

import (
	"fmt"
	"strings"

	"github.com/johnayoung/jazamiti-consensus/internal/record"
)

// Check names as they appear in reports.
const (
	NameStructure     = "Validate data structure"
	NameDataQuality   = "Validate data quality"
	NameBusinessRules = "Validate business rules"
	NameGPS           = "Validate GPS data"
	NameImages        = "Validate image data"
)

// Check is the outcome of one rule over a dataset.
type Check struct {
	Name       string   `json:"name"`
	Passed     bool     `json:"passed"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func newCheck(name, okMsg string, violations, warnings []string) Check {
	c := Check{
		Name:       name,
		Passed:     len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
	}
	if c.Passed {
		c.Message = okMsg
	} else {
		c.Message = strings.Join(violations, "; ")
	}
	return c
}

func recordErr(index int, format string, args ...any) string {
	return fmt.Sprintf("Record %d: ", index) + fmt.Sprintf(format, args...)
}

// CheckStructure requires a non-empty dataset whose records carry string id and name fields.
func CheckStructure(ds record.Dataset) Check {
	if ds == nil {
		return newCheck(NameStructure, "", []string{"Data is not an array"}, nil)
	}
	if len(ds) == 0 {
		return newCheck(NameStructure, "", []string{"Data array is empty"}, nil)
	}

	var errs []string
	for i, r := range ds {
		id, hasID := r["id"]
		name, hasName := r["name"]
		if !hasID || isBlank(id) {
			errs = append(errs, recordErr(i, "Missing 'id'"))
		} else if _, ok := id.(string); !ok {
			errs = append(errs, recordErr(i, "'id' must be string"))
		}
		if !hasName || isBlank(name) {
			errs = append(errs, recordErr(i, "Missing 'name'"))
		} else if _, ok := name.(string); !ok {
			errs = append(errs, recordErr(i, "'name' must be string"))
		}
	}
	return newCheck(NameStructure, "All records have required fields", errs, nil)
}

// CheckDataQuality flags whitespace-only names and negative counts.
func CheckDataQuality(ds record.Dataset) Check {
	var errs []string
	for i, r := range ds {
		if name, ok := r["name"].(string); ok && name != "" && strings.TrimSpace(name) == "" {
			errs = append(errs, recordErr(i, "'name' is empty"))
		}
		if count, ok := r["count"].(float64); ok && count < 0 {
			errs = append(errs, recordErr(i, "'count' is negative"))
		}
	}
	return newCheck(NameDataQuality, "Data quality checks passed", errs, nil)
}

// CheckBusinessRules validates region, typePlanted and scientificName when present.
func CheckBusinessRules(ds record.Dataset) Check {
	var errs []string
	for i, r := range ds {
		if v, ok := r["region"]; ok && !isBlank(v) {
			if s, _ := v.(string); !IsValidRegion(s) {
				errs = append(errs, recordErr(i, "Invalid region '%v'", v))
			}
		}
		if v, ok := r["typePlanted"]; ok && !isBlank(v) {
			if s, _ := v.(string); !IsValidTreeType(s) {
				errs = append(errs, recordErr(i, "Invalid tree type '%v'", v))
			}
		}
		if v, ok := r["scientificName"]; ok && !isBlank(v) {
			if s, _ := v.(string); !IsValidScientificName(s) {
				errs = append(errs, recordErr(i, "Invalid scientific name format"))
			}
		}
	}
	return newCheck(NameBusinessRules, "All business rules satisfied", errs, nil)
}

// CheckGPSBounds requires gpsData with numeric coordinates inside the global
// ranges and KenyaBounds.
func CheckGPSBounds(ds record.Dataset) Check {
	var errs []string
	for i, r := range ds {
		gps, ok := r["gpsData"].(map[string]any)
		if !ok {
			errs = append(errs, recordErr(i, "GPS data missing"))
			continue
		}

		lat, latOK := gps["latitude"].(float64)
		lon, lonOK := gps["longitude"].(float64)
		if !latOK {
			errs = append(errs, recordErr(i, "Invalid latitude"))
		}
		if !lonOK {
			errs = append(errs, recordErr(i, "Invalid longitude"))
		}
		if !latOK || !lonOK {
			continue
		}

		if lat < -90 || lat > 90 {
			errs = append(errs, recordErr(i, "Latitude out of range"))
		}
		if lon < -180 || lon > 180 {
			errs = append(errs, recordErr(i, "Longitude out of range"))
		}
		if !InKenyaBounds(lat, lon) {
			errs = append(errs, recordErr(i, "Coordinates outside Kenya bounds"))
		}
	}
	return newCheck(NameGPS, "All GPS coordinates valid", errs, nil)
}

// CheckImageFormat validates every entry of the images array. Records without
// images only produce warnings.
func CheckImageFormat(ds record.Dataset) Check {
	var errs, warnings []string
	for i, r := range ds {
		raw, ok := r["images"]
		if !ok || raw == nil {
			warnings = append(warnings, recordErr(i, "No images provided"))
			continue
		}

		images, ok := raw.([]any)
		if !ok {
			errs = append(errs, recordErr(i, "'images' must be array"))
			continue
		}
		if len(images) == 0 {
			warnings = append(warnings, recordErr(i, "Empty images array"))
		}

		for j, img := range images {
			s, ok := img.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("Record %d, Image %d: Must be string", i, j))
				continue
			}
			if !IsValidImage(s) {
				errs = append(errs, fmt.Sprintf("Record %d, Image %d: Invalid format", i, j))
			}
		}
	}
	return newCheck(NameImages, "All images valid", errs, warnings)
}

// RunAll executes every check in report order.
func RunAll(ds record.Dataset) []Check {
	return []Check{
		CheckStructure(ds),
		CheckDataQuality(ds),
		CheckBusinessRules(ds),
		CheckGPSBounds(ds),
		CheckImageFormat(ds),
	}
}

// AllPassed reports whether every check passed.
func AllPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	}
	return false
}

package cmm

import (
	"fmt"
	"strconv"
	"strings"

	"balloon/pkg/models"
)

// parseNumber reads a report cell. Unit suffixes, a leading ± and unicode
// minus signs are tolerated; a lone comma is read as a decimal separator.
func parseNumber(s string) (*float64, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" || cleaned == "-" || strings.EqualFold(cleaned, "n/a") {
		return nil, nil
	}
	cleaned = strings.NewReplacer("−", "-", "–", "-", "±", "", "+/-", "", " ", "").Replace(cleaned)
	for _, suffix := range []string{"mm", "MM", "in", "IN", "\"", "°", "deg", "DEG"} {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("unable to parse number: %s", s)
	}
	return &v, nil
}

// parseStatus maps report pass/fail tokens.
func parseStatus(s string) (models.ConformanceStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS", "PASSED", "OK", "IN", "GOOD", "ACCEPT", "ACCEPTED", "IO", "TRUE":
		return models.StatusPass, true
	case "FAIL", "FAILED", "NOK", "NG", "OUT", "REJECT", "REJECTED", "NIO", "FALSE", "OOT":
		return models.StatusFail, true
	}
	return "", false
}

// parseUnits maps a unit cell or marker.
func parseUnits(s string) models.Units {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), "()[]")) {
	case "mm", "millimeter", "millimeters", "metric":
		return models.UnitsMillimeter
	case "in", "inch", "inches", "\"":
		return models.UnitsInch
	case "deg", "degree", "degrees", "°":
		return models.UnitsDegree
	}
	return ""
}

func abs(p *float64) *float64 {
	if p == nil || *p >= 0 {
		return p
	}
	v := -*p
	return &v
}

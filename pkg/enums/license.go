package enums

import (
	"fmt"
	"strings"
)

// LicenseType maps to the license_type enum in Postgres.
type LicenseType string

const (
	LicenseTypeIndividual LicenseType = "individual"
	LicenseTypeTeam       LicenseType = "team"
)

var validLicenseTypes = []LicenseType{
	LicenseTypeIndividual,
	LicenseTypeTeam,
}

// String implements fmt.Stringer.
func (l LicenseType) String() string {
	return string(l)
}

// IsValid reports whether the value matches the canonical license_type enum.
func (l LicenseType) IsValid() bool {
	for _, candidate := range validLicenseTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLicenseType converts raw input into LicenseType. Blank input yields
// the individual default.
func ParseLicenseType(value string) (LicenseType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return LicenseTypeIndividual, nil
	}
	for _, candidate := range validLicenseTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license type %q", value)
}

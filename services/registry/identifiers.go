package registry

import (
	"regexp"
	"strings"

	"guardget/models"
)

var serialPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{3,63}$`)

// ValidIMEI checks length and the Luhn check digit.
func ValidIMEI(imei string) bool {
	if len(imei) != 15 {
		return false
	}
	sum := 0
	for i := 0; i < 15; i++ {
		c := imei[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		// every second digit from the left is doubled
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// NormalizeSerial upper-cases and trims a serial number.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

func validateRegistration(reg *models.DeviceRegistration) error {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.SerialNumber = NormalizeSerial(reg.SerialNumber)
	reg.IMEI1 = strings.TrimSpace(reg.IMEI1)
	reg.IMEI2 = strings.TrimSpace(reg.IMEI2)

	if reg.Name == "" || len(reg.Name) > 120 {
		return models.NewValidationError("name is required and must be at most 120 characters")
	}
	if !reg.Type.Valid() {
		return models.NewValidationError("type must be one of phone, tablet, laptop, watch, other")
	}
	if reg.SerialNumber != "" && !serialPattern.MatchString(reg.SerialNumber) {
		return models.NewValidationError("serialNumber must be 4 to 64 letters, digits or dashes")
	}

	if reg.Type.PhoneLike() {
		if reg.IMEI1 == "" {
			return models.NewValidationError("imei1 is required for " + string(reg.Type) + " devices")
		}
		if !ValidIMEI(reg.IMEI1) {
			return models.NewValidationError("imei1 is not a valid IMEI")
		}
		if reg.IMEI2 != "" && (!ValidIMEI(reg.IMEI2) || reg.IMEI2 == reg.IMEI1) {
			return models.NewValidationError("imei2 is not a valid second IMEI")
		}
		return nil
	}

	if reg.IMEI1 != "" || reg.IMEI2 != "" {
		return models.NewValidationError("only phones, tablets and watches carry IMEIs")
	}
	if reg.SerialNumber == "" {
		return models.NewValidationError("serialNumber is required")
	}
	return nil
}

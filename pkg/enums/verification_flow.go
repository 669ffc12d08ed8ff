package enums

import "fmt"

// VerificationFlow tags a stored code with the protocol that issued it so
// codes from one flow can never satisfy another.
type VerificationFlow string

const (
	VerificationFlowAdminLogin       VerificationFlow = "admin_login"
	VerificationFlowAppLogin         VerificationFlow = "app_login"
	VerificationFlowDeviceActivation VerificationFlow = "device_activation"
)

var validVerificationFlows = []VerificationFlow{
	VerificationFlowAdminLogin,
	VerificationFlowAppLogin,
	VerificationFlowDeviceActivation,
}

// String implements fmt.Stringer.
func (f VerificationFlow) String() string {
	return string(f)
}

// IsValid reports whether the value is a known VerificationFlow.
func (f VerificationFlow) IsValid() bool {
	for _, candidate := range validVerificationFlows {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseVerificationFlow converts raw input into a VerificationFlow.
func ParseVerificationFlow(value string) (VerificationFlow, error) {
	for _, candidate := range validVerificationFlows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification flow %q", value)
}

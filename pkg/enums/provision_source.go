package enums

// ProvisionSource records how a license came to exist.
type ProvisionSource string

const (
	ProvisionSourceAdmin   ProvisionSource = "admin"
	ProvisionSourcePayment ProvisionSource = "payment"
)

// String implements fmt.Stringer.
func (p ProvisionSource) String() string {
	return string(p)
}

// ProductTypeLicense is the checkout metadata marker for license purchases.
const ProductTypeLicense = "wdir_license"

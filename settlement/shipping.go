package settlement

// ShippingAddress is the delivery address collected by the hosted checkout.
// It is required on a Purchase once the purchase is completed.
// Line2 and State are optional; not every address has them and not every
// country uses states.
type ShippingAddress struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Complete reports whether all mandatory shipping fields are present.
func (a ShippingAddress) Complete() bool {
	return a.Name != "" &&
		a.Line1 != "" &&
		a.City != "" &&
		a.PostalCode != "" &&
		a.Country != ""
}

// IsZero reports whether no shipping field has been set at all.
func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}

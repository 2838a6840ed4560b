package models

// MinimumBriefQuantity is the smallest cumulative brief quantity a cart may
// check out with.
const MinimumBriefQuantity = 3

// PolicyLine is the view of a cart line the minimum-quantity policy needs.
type PolicyLine struct {
	ProductClass ProductClass
	Quantity     int
	// Units is the number of items one line quantity represents: 1 for
	// singles, the cardinality for bundles.
	Units int
}

// PolicyResult is the outcome of evaluating the policy over a cart.
type PolicyResult struct {
	BriefQuantity         int
	BriefsPresent         bool
	BriefOnly             bool
	Combination           bool
	GymwearOnly           bool
	HasInsufficientBriefs bool
	Remaining             int
}

// Warning is the user-facing message for an insufficient cart.
func (r PolicyResult) Warning() string {
	if !r.HasInsufficientBriefs {
		return ""
	}
	return (&MinimumQuantityError{Remaining: r.Remaining}).Error()
}

// PolicyLineFromCart maps a cart line onto the policy view.
func PolicyLineFromCart(l CartLine) PolicyLine {
	units := 1
	if l.ProductType == ProductBundle {
		if c := l.BundleType.Cardinality(); c > 0 {
			units = c
		}
	}
	return PolicyLine{ProductClass: l.ProductClass, Quantity: l.Quantity, Units: units}
}

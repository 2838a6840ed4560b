package services

import "storefront/internal/models"

// EvaluateMinimumQuantity applies the brief minimum-order rule to a cart's
// current contents. Briefs need a cumulative quantity of at least
// models.MinimumBriefQuantity unless the cart pairs gymwear with a single
// brief line of quantity one.
func EvaluateMinimumQuantity(lines []models.PolicyLine) models.PolicyResult {
	var (
		result         models.PolicyResult
		gymwearLines   int
		otherLines     int
		singleBriefQty bool
	)

	for _, line := range lines {
		switch line.ProductClass {
		case models.ClassBrief:
			units := line.Units
			if units < 1 {
				units = 1
			}
			result.BriefsPresent = true
			result.BriefQuantity += line.Quantity * units
			if line.Quantity == 1 {
				singleBriefQty = true
			}
		case models.ClassGymwear:
			gymwearLines++
		default:
			otherLines++
		}
	}

	result.BriefOnly = result.BriefsPresent && gymwearLines == 0 && otherLines == 0
	result.Combination = gymwearLines > 0 && singleBriefQty
	result.GymwearOnly = !result.BriefsPresent && gymwearLines > 0 && otherLines == 0

	result.HasInsufficientBriefs = result.BriefsPresent &&
		result.BriefQuantity < models.MinimumBriefQuantity &&
		!result.Combination &&
		!result.GymwearOnly
	if result.HasInsufficientBriefs {
		result.Remaining = models.MinimumBriefQuantity - result.BriefQuantity
	}
	return result
}

// EvaluateCart runs the policy over materialized cart lines.
func EvaluateCart(lines []models.CartLine) models.PolicyResult {
	policyLines := make([]models.PolicyLine, 0, len(lines))
	for _, l := range lines {
		policyLines = append(policyLines, models.PolicyLineFromCart(l))
	}
	return EvaluateMinimumQuantity(policyLines)
}

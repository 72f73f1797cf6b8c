// Package billingcycle computes billing period boundaries and proration amounts.
//
// Periods advance by calendar months or years. When the day-of-month does not
// exist in the target month it is clamped to the last valid day, so a monthly
// period anchored on January 31 continues as February 28 (or 29) and then
// March 28: the anchor is not restored after clamping.
//
//	p, _ := billingcycle.NewPeriod(start, billingcycle.Monthly)
//	next, _ := billingcycle.NextPeriod(p, billingcycle.Monthly)
//
// Proration is expressed in minor currency units. A positive amount is an
// additional charge, a negative one is a credit:
//
//	frac, _ := billingcycle.RemainingFraction(p, now)
//	amount, _ := billingcycle.Prorate(1000, 2000, frac)
package billingcycle

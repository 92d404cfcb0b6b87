package service

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

var (
	// professorShare is the creator's cut of every sale; the platform keeps the remainder.
	professorShare = decimal.RequireFromString("0.70")

	// maxSalePrice is the exclusive upper bound that fits NUMERIC(12,2).
	maxSalePrice = decimal.New(1, 10)
)

// SplitEarnings divides a sale price between professor and platform. The
// professor share is rounded to cents; the admin share is the exact remainder,
// so the two always add back up to total.
func SplitEarnings(total decimal.Decimal) (professor, admin decimal.Decimal) {
	professor = total.Mul(professorShare).Round(2)
	admin = total.Sub(professor)
	return professor, admin
}

func validateSalePrice(total decimal.Decimal) error {
	if !total.IsPositive() {
		return invalid("total_price", "must be greater than 0")
	}
	if !total.Equal(total.Truncate(2)) {
		return invalid("total_price", "must have at most 2 decimal places")
	}
	if total.GreaterThanOrEqual(maxSalePrice) {
		return invalid("total_price", "is too large")
	}
	return nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	d = d.Round(2)
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

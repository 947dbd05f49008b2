package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

var (
	// GramsPerTroyOunce is the exact troy ounce mass.
	GramsPerTroyOunce = decimal.RequireFromString("31.1034768")
	ten               = decimal.NewFromInt(10)
)

// TenGramsINR converts a USD per troy ounce quote into INR per 10 grams, rounded to paise.
func TenGramsINR(usdPerTroyOunce, usdToINR decimal.Decimal) decimal.Decimal {
	return usdPerTroyOunce.Mul(usdToINR).Div(GramsPerTroyOunce).Mul(ten).Round(2)
}

// PerTenGrams converts a per troy ounce quote (any currency) into a per 10 grams quote.
func PerTenGrams(perTroyOunce decimal.Decimal) decimal.Decimal {
	return perTroyOunce.Div(GramsPerTroyOunce).Mul(ten).Round(2)
}

// OunceUSDToTenGramsINR returns a conversion step backed by an FX source.
func OunceUSDToTenGramsINR(fx FXSource) ConvertFunc {
	return func(ctx context.Context, p decimal.Decimal) (decimal.Decimal, error) {
		usdInr, err := fx.Rate(ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return TenGramsINR(p, usdInr), nil
	}
}

// OunceToTenGrams is a conversion step for quotes already in the target currency.
func OunceToTenGrams(_ context.Context, p decimal.Decimal) (decimal.Decimal, error) {
	return PerTenGrams(p), nil
}

// Scale multiplies quotes by a constant factor.
func Scale(factor decimal.Decimal) ConvertFunc {
	return func(_ context.Context, p decimal.Decimal) (decimal.Decimal, error) {
		return p.Mul(factor), nil
	}
}

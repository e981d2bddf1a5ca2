//go:build property

package commission

import (
	"math"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRateApplyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	amounts := gen.Int64Range(0, math.MaxInt64)
	rates := gen.Int64Range(0, Denominator)

	properties.Property("commission is bounded by the amount", prop.ForAll(
		func(amount, rate int64) bool {
			rem, fee := Rate(rate).Apply(amount)
			return fee >= 0 && fee <= amount && rem >= 0
		},
		amounts, rates,
	))

	properties.Property("remainder and commission conserve the amount", prop.ForAll(
		func(amount, rate int64) bool {
			rem, fee := Rate(rate).Apply(amount)
			return rem+fee == amount
		},
		amounts, rates,
	))

	properties.Property("commission equals floor(amount*rate/10000)", prop.ForAll(
		func(amount, rate int64) bool {
			_, fee := Rate(rate).Apply(amount)
			exact := new(big.Int).Mul(big.NewInt(amount), big.NewInt(rate))
			exact.Quo(exact, big.NewInt(Denominator))
			return exact.IsInt64() && exact.Int64() == fee
		},
		amounts, rates,
	))

	properties.Property("commission is monotone in the rate", prop.ForAll(
		func(amount, r1, r2 int64) bool {
			if r1 > r2 {
				r1, r2 = r2, r1
			}
			_, lo := Rate(r1).Apply(amount)
			_, hi := Rate(r2).Apply(amount)
			return lo <= hi
		},
		amounts, rates, rates,
	))

	properties.TestingRun(t)
}

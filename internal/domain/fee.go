package domain

import "math/big"

// Fee rates are protocol constants, not configuration.
const (
	// ProtocolFeeBps is deducted from the gross swap output at purchase.
	ProtocolFeeBps = 50
	// ExpiryRefundFeeBps is deducted from the remaining balance when an
	// expired position is claimed back by its holder.
	ExpiryRefundFeeBps = 200
	// BpsDenominator converts basis points to a fraction.
	BpsDenominator = 10_000
)

// SplitFee splits amount into (fee, net) where fee = amount*bps/10000
// rounded down. amount is not mutated.
func SplitFee(amount *big.Int, bps int64) (fee, net *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(bps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}

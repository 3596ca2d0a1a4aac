package events

import (
	"math/big"

	"tranchefi/crypto"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

package validator

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	Coin              uint64 = 1_000_000_000
	RewardPercentage  uint64 = 50
	HalvingInterval   uint64 = 262_800
	TotalDistribution uint64 = 20_000_000

	// shareScale NetworkShare 保留的小数位
	shareScale = 18
)

var (
	// BitsDenominator 难度换算单位
	BitsDenominator = decimal.RequireFromString("0.0000001")

	coinDec              = decimal.NewFromBigInt(new(big.Int).SetUint64(Coin), 0)
	totalDistributionDec = decimal.NewFromBigInt(new(big.Int).SetUint64(TotalDistribution), 0)
)

func uintDec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func decUint(d decimal.Decimal) uint64 {
	b := d.Floor().BigInt()
	if b.Sign() <= 0 {
		return 0
	}
	if !b.IsUint64() {
		return ^uint64(0)
	}
	return b.Uint64()
}

// RewardFraction (RewardPercentage*Coin) >> halvings，减半 64 次后为 0
func RewardFraction(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return (RewardPercentage * Coin) >> halvings
}

// NetworkShare solution * RewardFraction / Coin / TotalDistribution
func NetworkShare(solution, height uint64) decimal.Decimal {
	v := uintDec(solution).Mul(uintDec(RewardFraction(height)))
	v = v.DivRound(coinDec, shareScale)
	return v.DivRound(totalDistributionDec, shareScale)
}

// Difficulty max(1, floor(solution * share / BitsDenominator))
func Difficulty(solution uint64, share decimal.Decimal) uint64 {
	bits := decUint(uintDec(solution).Mul(share).Div(BitsDenominator))
	if bits < 1 {
		return 1
	}
	return bits
}

// RewardAmount floor(share * Coin)，coinstake 输出的金额
func RewardAmount(share decimal.Decimal) uint64 {
	return decUint(share.Mul(coinDec))
}

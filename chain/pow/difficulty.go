// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package pow implements the compact-bits target encoding, hybrid
// PoW+stake difficulty derivation, and the retarget schedule.
package pow

import (
	"math/big"
	"strings"
)

// MinDifficultyBits is the easiest allowed compact target, used as the
// genesis difficulty's upper cap during retargeting.
const MinDifficultyBits uint32 = 0x207fffff

// GenesisBits is the genesis block's difficulty.
const GenesisBits uint32 = 0x1d00ffff

// RetargetInterval is the number of blocks between difficulty
// recalculations.
const RetargetInterval = 10

// TargetTimespan is the expected number of seconds RetargetInterval
// blocks should take.
const TargetTimespan = 600

// MaxStakeBonus is the cap on how many leading zeros a validator's stake
// can shave off the required prefix.
const MaxStakeBonus = 5

// StakeBonusDivisor: bonus = min(MaxStakeBonus, floor(stake / divisor)).
const StakeBonusDivisor = 10_000_000_000

// BitsToTarget expands a compact "bits" encoding (exponent<<24 | mantissa)
// into a 256-bit target, Bitcoin-style.
func BitsToTarget(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x00ffffff
	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		shift := 8 * (3 - int(exponent))
		target.Rsh(target, uint(shift))
	} else {
		shift := 8 * (int(exponent) - 3)
		target.Lsh(target, uint(shift))
	}
	return target
}

// TargetToBits compacts a 256-bit target back into the bits encoding.
func TargetToBits(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}
	raw := target.Bytes()
	exponent := len(raw)
	var mantissa uint32
	if exponent <= 3 {
		padded := make([]byte, 3)
		copy(padded[3-exponent:], raw)
		mantissa = uint32(padded[0])<<16 | uint32(padded[1])<<8 | uint32(padded[2])
	} else {
		mantissa = uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
	}
	// The mantissa's top bit is a sign bit in Bitcoin's encoding; if set,
	// shift one byte further and drop the least-significant byte.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}
	return uint32(exponent)<<24 | mantissa
}

// StakeBonus returns the leading-zero discount a validator's claimed
// stake earns, capped at MaxStakeBonus.
func StakeBonus(validatorStake uint64) uint32 {
	bonus := validatorStake / StakeBonusDivisor
	if bonus > MaxStakeBonus {
		return MaxStakeBonus
	}
	return uint32(bonus)
}

// RequiredLeadingZeros derives the simplified hex-prefix leading-zero
// count from compact bits and a stake bonus. This intentionally does
// not match a strict 256-bit target comparison. It is preserved here
// for bit-level compatibility with existing chain data; MeetsStrictTarget
// below is the exact comparator for a v2 activation.
func RequiredLeadingZeros(bits uint32, validatorStake uint64) int {
	var base uint32
	switch {
	case bits >= 0x207fffff:
		base = 0
	case bits >= 0x1f00ffff:
		base = 1
	default:
		base = 4
	}
	bonus := StakeBonus(validatorStake)
	if bonus >= base {
		return 0
	}
	return int(base - bonus)
}

// MeetsSimplifiedTarget reports whether hashHex begins with the required
// count of '0' characters. This is the wire-compatible check described
// above, used by default.
func MeetsSimplifiedTarget(hashHex string, bits uint32, validatorStake uint64) bool {
	k := RequiredLeadingZeros(bits, validatorStake)
	if k == 0 {
		return true
	}
	return strings.HasPrefix(hashHex, strings.Repeat("0", k))
}

// MeetsStrictTarget is the v2 comparator: the header hash, interpreted
// as a big-endian 256-bit integer, must not exceed the compact-bits
// target. The stake bonus is not applied here — in strict mode a
// validator's advisory bonus narrows the simplified prefix check only;
// it never loosens the real consensus target.
func MeetsStrictTarget(hashBytes []byte, bits uint32) bool {
	hashInt := new(big.Int).SetBytes(hashBytes)
	return hashInt.Cmp(BitsToTarget(bits)) <= 0
}

// clampTimespan dampens actual into [target/4, target*4].
func clampTimespan(actual, target int64) int64 {
	if actual < target/4 {
		return target / 4
	}
	if actual > target*4 {
		return target * 4
	}
	return actual
}

// NextDifficulty computes the retargeted bits for the block following
// lastBits, given the actual timespan (seconds) the prior
// RetargetInterval blocks took. Callers only invoke this every
// RetargetInterval blocks; in between, the new block inherits the
// previous block's bits unchanged.
func NextDifficulty(lastBits uint32, actualTimespanSeconds int64) uint32 {
	dampened := clampTimespan(actualTimespanSeconds, TargetTimespan)

	oldTarget := BitsToTarget(lastBits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(dampened))
	newTarget.Div(newTarget, big.NewInt(TargetTimespan))

	maxTarget := BitsToTarget(MinDifficultyBits)
	if newTarget.Cmp(maxTarget) > 0 {
		newTarget = maxTarget
	}
	if newTarget.Sign() <= 0 {
		newTarget = big.NewInt(1)
	}
	return TargetToBits(newTarget)
}

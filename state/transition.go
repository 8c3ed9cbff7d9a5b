package state

import (
	"strings"

	"github.com/tos-network/vlt/chain/types"
)

// ammFeeNumerator/ammFeeDenominator implement the 0.3% swap fee via
// integer arithmetic: amount_in_with_fee = amount_in * 997 / 1000.
const (
	ammFeeNumerator   = 997
	ammFeeDenominator = 1000
)

// Apply mutates s according to tx's variant and its debit/credit
// rules, returning false (with no partial effect other than what was
// already committed for earlier fields, since each variant validates
// fully before mutating) if the transaction cannot be applied against
// the current state.
func Apply(s *State, tx *types.Transaction) bool {
	if tx.Sender != types.System && tx.Nonce <= s.Nonces[tx.Sender] {
		return false
	}
	var ok bool
	switch tx.Type {
	case types.Transfer:
		ok = applyTransfer(s, tx)
	case types.IssueToken:
		ok = applyIssueToken(s, tx)
	case types.Stake:
		ok = applyStake(s, tx)
	case types.Unstake:
		ok = applyUnstake(s, tx)
	case types.Burn:
		ok = applyBurn(s, tx)
	case types.PlaceOrder:
		ok = applyPlaceOrder(s, tx)
	case types.CancelOrder:
		ok = applyCancelOrder(s, tx)
	case types.AddLiquidity:
		ok = applyAddLiquidity(s, tx)
	case types.RemoveLiquidity:
		ok = applyRemoveLiquidity(s, tx)
	case types.Swap:
		ok = applySwap(s, tx)
	case types.IssueNFT:
		ok = applyIssueNFT(s, tx)
	case types.TransferNFT:
		ok = applyTransferNFT(s, tx)
	case types.BurnNFT:
		ok = applyBurnNFT(s, tx)
	default:
		return false
	}
	if ok && tx.Sender != types.System {
		s.Nonces[tx.Sender] = tx.Nonce
	}
	return ok
}

// payableFeeToken picks VLT when the sender can afford the fee in VLT,
// falling back to tx.Token otherwise. It returns "" if neither covers
// the fee.
func payableFeeToken(s *State, sender, token string, fee uint64) string {
	if sender == types.System {
		return types.NativeToken
	}
	if s.Balance(sender, types.NativeToken) >= fee {
		return types.NativeToken
	}
	if token != types.NativeToken && s.Balance(sender, token) >= fee {
		return token
	}
	return ""
}

func applyTransfer(s *State, tx *types.Transaction) bool {
	if tx.Sender == types.System {
		s.credit(tx.Receiver, tx.Token, tx.Amount)
		return true
	}
	feeToken := payableFeeToken(s, tx.Sender, tx.Token, tx.Fee)
	if feeToken == "" {
		return false
	}
	need := tx.Amount
	if feeToken == tx.Token {
		need += tx.Fee
	}
	if s.Balance(tx.Sender, tx.Token) < need {
		return false
	}
	s.debit(tx.Sender, feeToken, tx.Fee)
	s.debit(tx.Sender, tx.Token, tx.Amount)
	s.credit(tx.Receiver, tx.Token, tx.Amount)
	return true
}

func applyIssueToken(s *State, tx *types.Transaction) bool {
	if issuer, exists := s.Tokens[tx.Token]; exists && issuer != tx.Sender {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.Tokens[tx.Token] = tx.Sender
	s.credit(tx.Sender, tx.Token, tx.Amount)
	return true
}

func applyStake(s *State, tx *types.Transaction) bool {
	if s.Balance(tx.Sender, types.NativeToken) < tx.Amount+tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.debit(tx.Sender, types.NativeToken, tx.Amount)
	s.Stakes[tx.Sender] += tx.Amount
	return true
}

func applyUnstake(s *State, tx *types.Transaction) bool {
	if s.Stakes[tx.Sender] < tx.Amount {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.Stakes[tx.Sender] -= tx.Amount
	s.credit(tx.Sender, types.NativeToken, tx.Amount)
	return true
}

func applyBurn(s *State, tx *types.Transaction) bool {
	feeToken := payableFeeToken(s, tx.Sender, tx.Token, tx.Fee)
	if feeToken == "" {
		return false
	}
	need := tx.Amount
	if feeToken == tx.Token {
		need += tx.Fee
	}
	if s.Balance(tx.Sender, tx.Token) < need {
		return false
	}
	s.debit(tx.Sender, feeToken, tx.Fee)
	s.debit(tx.Sender, tx.Token, tx.Amount)
	s.credit(types.SentinelBurn, tx.Token, tx.Amount)
	return true
}

func applyPlaceOrder(s *State, tx *types.Transaction) bool {
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	side := tx.Side()
	var lockToken string
	var lockAmount uint64
	if side == types.SideBuy {
		lockToken = types.NativeToken
		lockAmount = orderCost(tx.Amount, tx.Price)
	} else {
		lockToken = tx.Token
		lockAmount = tx.Amount
	}
	need := lockAmount
	if lockToken == types.NativeToken {
		need += tx.Fee
	}
	if s.Balance(tx.Sender, lockToken) < need {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.debit(tx.Sender, lockToken, lockAmount)

	order := &Order{
		ID:              tx.HashHex(),
		Creator:         tx.Sender,
		Token:           tx.Token,
		Side:            side,
		Price:           tx.Price,
		RemainingAmount: tx.Amount,
		Timestamp:       tx.Timestamp,
	}
	s.matchIncoming(order)
	if order.RemainingAmount > 0 {
		s.restOrder(order)
	}
	return true
}

func applyCancelOrder(s *State, tx *types.Transaction) bool {
	order, exists := s.Orders[tx.OrderID()]
	if !exists || order.Creator != tx.Sender {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	if order.Side == types.SideBuy {
		s.credit(order.Creator, types.NativeToken, orderCost(order.RemainingAmount, order.Price))
	} else {
		s.credit(order.Creator, order.Token, order.RemainingAmount)
	}
	s.removeResting(order)
	return true
}

func poolTokens(poolID string) (string, string, bool) {
	parts := strings.SplitN(poolID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func applyAddLiquidity(s *State, tx *types.Transaction) bool {
	tokenA, tokenB, valid := poolTokens(tx.Token)
	if !valid {
		return false
	}
	amountA, amountB := tx.Amount, tx.Price
	if amountA == 0 || amountB == 0 {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	if s.Balance(tx.Sender, tokenA) < amountA || s.Balance(tx.Sender, tokenB) < amountB {
		return false
	}

	pool, exists := s.Pools[tx.Token]
	if !exists {
		pool = &Pool{TokenA: tokenA, TokenB: tokenB, Shares: make(map[string]uint64)}
		s.Pools[tx.Token] = pool
	}

	var minted uint64
	if pool.TotalShares == 0 {
		minted = isqrt(amountA * amountB)
		if minted == 0 {
			return false
		}
	} else {
		// Subsequent deposits must match the pool's current ratio exactly.
		if amountA*pool.ReserveB != amountB*pool.ReserveA {
			return false
		}
		minted = amountA * pool.TotalShares / pool.ReserveA
		if minted == 0 {
			return false
		}
	}

	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.debit(tx.Sender, tokenA, amountA)
	s.debit(tx.Sender, tokenB, amountB)
	pool.ReserveA += amountA
	pool.ReserveB += amountB
	pool.TotalShares += minted
	pool.Shares[tx.Sender] += minted
	return true
}

func applyRemoveLiquidity(s *State, tx *types.Transaction) bool {
	pool, exists := s.Pools[tx.Token]
	if !exists || pool.Shares[tx.Sender] < tx.Amount || tx.Amount == 0 {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	amountA := tx.Amount * pool.ReserveA / pool.TotalShares
	amountB := tx.Amount * pool.ReserveB / pool.TotalShares

	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	pool.ReserveA -= amountA
	pool.ReserveB -= amountB
	pool.TotalShares -= tx.Amount
	pool.Shares[tx.Sender] -= tx.Amount
	if pool.Shares[tx.Sender] == 0 {
		delete(pool.Shares, tx.Sender)
	}
	s.credit(tx.Sender, pool.TokenA, amountA)
	s.credit(tx.Sender, pool.TokenB, amountB)
	return true
}

func applySwap(s *State, tx *types.Transaction) bool {
	pool, exists := s.Pools[tx.Token]
	if !exists || tx.Amount == 0 {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}

	aToB := tx.Receiver == types.SentinelSwapAToB
	tokenIn, tokenOut := pool.TokenA, pool.TokenB
	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if !aToB {
		tokenIn, tokenOut = pool.TokenB, pool.TokenA
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}

	need := tx.Amount
	if tokenIn == types.NativeToken {
		need += tx.Fee
	}
	if s.Balance(tx.Sender, tokenIn) < need {
		return false
	}

	amountInWithFee := tx.Amount * ammFeeNumerator
	amountOut := reserveOut * amountInWithFee / (reserveIn*ammFeeDenominator + amountInWithFee)
	if amountOut == 0 || amountOut < tx.Price || amountOut >= reserveOut {
		return false
	}

	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.debit(tx.Sender, tokenIn, tx.Amount)
	s.credit(tx.Sender, tokenOut, amountOut)

	if aToB {
		pool.ReserveA += tx.Amount
		pool.ReserveB -= amountOut
	} else {
		pool.ReserveB += tx.Amount
		pool.ReserveA -= amountOut
	}
	s.recordCandle(tx.Token, tx.Timestamp, amountOut*types.AtomicUnitsPerCoin/tx.Amount, tx.Amount)
	return true
}

func applyIssueNFT(s *State, tx *types.Transaction) bool {
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	owner := tx.Receiver
	if owner == "" {
		owner = tx.Sender
	}
	id := tx.HashHex()
	if _, exists := s.NFTs[id]; exists {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	s.NFTs[id] = &NFT{ID: id, Owner: owner, URI: tx.Token, CreatedAt: tx.Timestamp}
	return true
}

func applyTransferNFT(s *State, tx *types.Transaction) bool {
	nft, exists := s.NFTs[tx.Token]
	if !exists || nft.Owner != tx.Sender {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	nft.Owner = tx.Receiver
	return true
}

func applyBurnNFT(s *State, tx *types.Transaction) bool {
	nft, exists := s.NFTs[tx.Token]
	if !exists || nft.Owner != tx.Sender {
		return false
	}
	if s.Balance(tx.Sender, types.NativeToken) < tx.Fee {
		return false
	}
	s.debit(tx.Sender, types.NativeToken, tx.Fee)
	delete(s.NFTs, tx.Token)
	return true
}

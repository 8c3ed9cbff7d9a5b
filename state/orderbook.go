package state

import (
	"sort"

	"github.com/tos-network/vlt/chain/types"
)

// orderCost converts a token amount at a given price into the VLT
// atomic units a buyer escrows or a seller receives. Price is expressed
// as VLT-atomic-units per whole unit (10^8 atomic) of the traded token.
func orderCost(amount, price uint64) uint64 {
	return amount * price / types.AtomicUnitsPerCoin
}

// bidLess reports whether a sorts before b in the bid book: higher
// price first, then earlier timestamp.
func bidLess(a, b *Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Timestamp < b.Timestamp
}

// askLess reports whether a sorts before b in the ask book: lower
// price first, then earlier timestamp.
func askLess(a, b *Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Timestamp < b.Timestamp
}

func insertSorted(s *State, ids []string, newID string, less func(a, b *Order) bool) []string {
	newOrder := s.Orders[newID]
	idx := sort.Search(len(ids), func(i int) bool {
		return less(newOrder, s.Orders[ids[i]])
	})
	ids = append(ids, "")
	copy(ids[idx+1:], ids[idx:])
	ids[idx] = newID
	return ids
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// matchIncoming crosses a freshly-admitted order against the resting
// book for the opposite side, price-time priority, filling as much as
// possible before the remainder (if any) rests.
func (s *State) matchIncoming(incoming *Order) {
	if incoming.Side == types.SideBuy {
		asks := s.Asks[incoming.Token]
		i := 0
		for i < len(asks) && incoming.RemainingAmount > 0 {
			ask := s.Orders[asks[i]]
			if ask.Price > incoming.Price {
				break
			}
			s.fill(incoming, ask, ask.Price)
			if ask.RemainingAmount == 0 {
				delete(s.Orders, asks[i])
				i++
				continue
			}
			break
		}
		s.Asks[incoming.Token] = asks[i:]
	} else {
		bids := s.Bids[incoming.Token]
		i := 0
		for i < len(bids) && incoming.RemainingAmount > 0 {
			bid := s.Orders[bids[i]]
			if bid.Price < incoming.Price {
				break
			}
			s.fill(bid, incoming, bid.Price)
			if bid.RemainingAmount == 0 {
				delete(s.Orders, bids[i])
				i++
				continue
			}
			break
		}
		s.Bids[incoming.Token] = bids[i:]
	}
}

// fill executes a trade between a bid and an ask at makerPrice — the
// resting order's price, never the incoming taker's — moving tokens to
// the buyer and VLT to the seller, and refunding the buyer any VLT
// escrowed above the trade price.
func (s *State) fill(bid, ask *Order, makerPrice uint64) {
	tradeAmount := min64(bid.RemainingAmount, ask.RemainingAmount)
	if tradeAmount == 0 {
		return
	}
	tradePrice := makerPrice
	cost := orderCost(tradeAmount, tradePrice)

	s.credit(bid.Creator, bid.Token, tradeAmount)
	s.credit(ask.Creator, types.NativeToken, cost)

	if bid.Price > tradePrice {
		escrowed := orderCost(tradeAmount, bid.Price)
		if escrowed > cost {
			s.credit(bid.Creator, types.NativeToken, escrowed-cost)
		}
	}

	bid.RemainingAmount -= tradeAmount
	ask.RemainingAmount -= tradeAmount
	s.recordCandle(bid.Token, bid.Timestamp, tradePrice, tradeAmount)
}

func (s *State) restOrder(o *Order) {
	s.Orders[o.ID] = o
	if o.Side == types.SideBuy {
		s.Bids[o.Token] = insertSorted(s, s.Bids[o.Token], o.ID, bidLess)
	} else {
		s.Asks[o.Token] = insertSorted(s, s.Asks[o.Token], o.ID, askLess)
	}
}

func (s *State) removeResting(o *Order) {
	delete(s.Orders, o.ID)
	if o.Side == types.SideBuy {
		s.Bids[o.Token] = removeID(s.Bids[o.Token], o.ID)
	} else {
		s.Asks[o.Token] = removeID(s.Asks[o.Token], o.ID)
	}
}

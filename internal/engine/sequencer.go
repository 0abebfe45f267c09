package engine

import (
	"cmp"
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
)

type Policy string

const (
	PolicyOrdered Policy = "ordered"
	PolicyRandom  Policy = "random"
)

func ParsePolicy(s string) (Policy, bool) {
	switch Policy(s) {
	case PolicyOrdered, PolicyRandom:
		return Policy(s), true
	case "":
		return "", true
	default:
		return "", false
	}
}

// EligibilityFunc is the external predicate a lot must pass before it can
// be put on the block.
type EligibilityFunc func(Lot) bool

// RegistrationSettled admits lots whose registration fee has been paid.
func RegistrationSettled(l Lot) bool { return l.FeePaid }

// RandSource picks the index used by the random policy. Tests inject a
// fixed one.
type RandSource interface {
	Intn(n int) int
}

// systemRand draws from crypto/rand. Next never asks it to pick from an
// empty pool.
type systemRand struct{}

func (systemRand) Intn(n int) int {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Errorf("sequencer: read randomness: %w", err))
	}
	return int(i.Int64())
}

type Sequencer struct {
	// ReadmitUnsold lets lots closed as unsold come back into the pool.
	ReadmitUnsold bool
	// Rand is used by PolicyRandom; nil means crypto/rand.
	Rand RandSource
}

// Admits reports whether l may be put on the block.
func (q Sequencer) Admits(l Lot, eligible EligibilityFunc) bool {
	switch l.Status {
	case LotAvailable:
	case LotUnsold:
		if !q.ReadmitUnsold {
			return false
		}
	default:
		return false
	}
	return eligible == nil || eligible(l)
}

// Candidates returns the admitted lots not in exclude, in auction order.
func (q Sequencer) Candidates(lots map[int64]Lot, exclude []int64, eligible EligibilityFunc) []Lot {
	out := make([]Lot, 0, len(lots))
	for _, l := range lots {
		if slices.Contains(exclude, l.ID) || !q.Admits(l, eligible) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, CompareOrder)
	return out
}

// Next picks the lot to put on the block. false means the pool is exhausted.
func (q Sequencer) Next(lots map[int64]Lot, policy Policy, exclude []int64, eligible EligibilityFunc) (Lot, bool) {
	candidates := q.Candidates(lots, exclude, eligible)
	if len(candidates) == 0 {
		return Lot{}, false
	}
	if policy != PolicyRandom {
		return candidates[0], true
	}
	r := q.Rand
	if r == nil {
		r = systemRand{}
	}
	return candidates[r.Intn(len(candidates))], true
}

// CompareOrder sorts by explicit sequence order ascending with unset orders
// last, then by id.
func CompareOrder(a, b Lot) int {
	switch {
	case a.SequenceOrder != nil && b.SequenceOrder != nil:
		if c := cmp.Compare(*a.SequenceOrder, *b.SequenceOrder); c != 0 {
			return c
		}
	case a.SequenceOrder != nil:
		return -1
	case b.SequenceOrder != nil:
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

// ApplySequence assigns order keys in bulk. It returns the updated lots in
// id order and any ids that do not exist.
func ApplySequence(lots map[int64]Lot, orders map[int64]int) (updated []Lot, unknown []int64) {
	for _, id := range sortedKeys(orders) {
		l, ok := lots[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		l.SequenceOrder = ptr(orders[id])
		updated = append(updated, l)
	}
	return updated, unknown
}

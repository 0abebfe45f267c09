package engine

// MaxBid is the most a team may bid while still keeping basePlayerPrice in
// reserve for every squad place it must fill after this one.
func MaxBid(team Team, minimumSquadSize int, basePlayerPrice int64) int64 {
	needed := minimumSquadSize - team.PlayersCount
	if needed <= 0 {
		return team.RemainingBudget
	}
	reserve := int64(needed-1) * basePlayerPrice
	return max(team.RemainingBudget-reserve, basePlayerPrice)
}

func (r Rules) MaxBid(team Team) int64 {
	return MaxBid(team, r.MinimumSquadSize, r.BasePlayerPrice)
}

// CheckAmount is the acceptance rule shared by new bids and bid corrections.
// floor is the smallest acceptable amount: the current bid plus the
// increment for a new bid, the lot's base price for a correction.
func (r Rules) CheckAmount(team Team, floor, amount int64) error {
	if amount < floor {
		return reject(ErrBelowMinimum, floor, "bid must be at least %d", floor)
	}
	if limit := r.MaxBid(team); amount > limit {
		needed := max(r.MinimumSquadSize-team.PlayersCount, 0)
		return reject(ErrExceedsTeamLimit, limit,
			"bid exceeds %s's maximum limit of %d, %d more players still needed", team.Name, limit, needed)
	}
	if amount > team.RemainingBudget {
		return reject(ErrInsufficientBudget, team.RemainingBudget,
			"insufficient budget: %s has %d remaining", team.Name, team.RemainingBudget)
	}
	return nil
}

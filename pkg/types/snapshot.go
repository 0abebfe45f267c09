package types

// view (sent in snapshot messages and inside every event):
//   auction_id: string (uuid)
//   season: number
//   status: "not_started" | "in_progress" | "paused" | "completed"
//   current_player: { id, name, role, status, base_price, sequence_order, fee_paid }
//   current_bid_amount: number
//   current_bidding_team: { id, name, short_name, budget, remaining_budget, players_count }
//   minimum_next_bid: number
//   started_at, ended_at: RFC 3339
//   teams: [{ team_id, name, remaining_budget, players_count, max_bid }]
//
// event:
//   type: "auction_started" | "new_bid" | "player_sold" | "player_unsold" |
//         "next_player" | "bid_updated" | "auction_paused" | "auction_resumed" |
//         "auction_reset" | "sequence_updated"
//   version: number
//   bid?: { id, auction_id, player_id, team_id, bid_amount, is_winning_bid, created_at }
//   player?: the player sold, passed or skipped
//   team?: the team whose purse or bid changed
//   completed?: true when no player is left to auction
//   view: as above
//   at: RFC 3339

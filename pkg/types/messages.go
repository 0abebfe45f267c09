package types

// Message types on the websocket at /auction/ws.
//
// Client -> Server (every message may carry request_id, echoed in the reply)
//   start:
//   bid:               team_id: number, bid_amount: number
//   sold:
//   unsold:
//   next:              policy?: "ordered" | "random", player_id?: number
//   next_random:
//   edit_last_bid:     team_id: number, bid_amount: number
//   pause:
//   resume:
//   reset:
//   set_auction_order: order: [{ player_id: number, order: number }]
//
// Server -> Client
//   snapshot: version, view           (first message after connecting)
//   event:    version, event          (every committed transition, in order)
//   ack:      request_id, version     (command accepted)
//   error:    request_id, error, kind, limit?
//
// A client whose queue fills up is disconnected with status 1013 (try again
// later) and should reconnect to receive a fresh snapshot.
const (
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
	MsgAck      = "ack"
	MsgError    = "error"
)

const (
	CmdStart           = "start"
	CmdBid             = "bid"
	CmdSold            = "sold"
	CmdUnsold          = "unsold"
	CmdNext            = "next"
	CmdNextRandom      = "next_random"
	CmdEditLastBid     = "edit_last_bid"
	CmdPause           = "pause"
	CmdResume          = "resume"
	CmdReset           = "reset"
	CmdSetAuctionOrder = "set_auction_order"
)

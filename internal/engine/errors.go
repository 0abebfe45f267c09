package engine

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrAuctionActive = errors.New("an auction is already in progress")
var ErrNoActiveAuction = errors.New("no active auction")
var ErrAuctionPaused = errors.New("auction is paused")
var ErrAuctionNotPaused = errors.New("auction is not paused")
var ErrNoCurrentLot = errors.New("no player currently on auction")
var ErrNoBid = errors.New("no bids placed for this player")

var ErrBelowMinimum = errors.New("bid below minimum")
var ErrExceedsTeamLimit = errors.New("bid exceeds team limit")
var ErrInsufficientBudget = errors.New("insufficient budget")
var ErrLotNotEligible = errors.New("player not eligible for auction")
var ErrEmptySequence = errors.New("empty auction order")
var ErrUnsupportedCommand = errors.New("unsupported command")

var ErrUnknownTeam = errors.New("team not found")
var ErrUnknownLot = errors.New("player not found")

var ErrNoEligibleLots = errors.New("no players available for auction")

// Raised outside the state machine by the serial executor.
var ErrBusy = errors.New("auction busy, retry")
var ErrStore = errors.New("store failure")

type Kind string

const (
	KindPrecondition   Kind = "precondition_failed"
	KindValidation     Kind = "validation_failed"
	KindNotFound       Kind = "not_found"
	KindNoEligibleLots Kind = "no_eligible_lots"
	KindContention     Kind = "contention"
	KindStore          Kind = "store_failure"
	KindUnknown        Kind = "unknown"
)

// KindOf classifies a command failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrBusy):
		return KindContention
	case errors.Is(err, ErrNoEligibleLots):
		return KindNoEligibleLots
	case errors.Is(err, ErrUnknownTeam), errors.Is(err, ErrUnknownLot):
		return KindNotFound
	case errors.Is(err, ErrAuctionActive), errors.Is(err, ErrNoActiveAuction),
		errors.Is(err, ErrAuctionPaused), errors.Is(err, ErrAuctionNotPaused),
		errors.Is(err, ErrNoCurrentLot), errors.Is(err, ErrNoBid):
		return KindPrecondition
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrExceedsTeamLimit),
		errors.Is(err, ErrInsufficientBudget), errors.Is(err, ErrLotNotEligible),
		errors.Is(err, ErrEmptySequence), errors.Is(err, ErrUnsupportedCommand):
		return KindValidation
	default:
		return KindUnknown
	}
}

// RejectionError carries the limit a command ran into so the operator can be
// told what would have been accepted.
type RejectionError struct {
	Reason error
	Limit  int64
	msg    string
}

func (e *RejectionError) Error() string { return e.msg }

func (e *RejectionError) Unwrap() error { return e.Reason }

var amounts = message.NewPrinter(language.English)

func reject(reason error, limit int64, format string, args ...any) error {
	return &RejectionError{Reason: reason, Limit: limit, msg: amounts.Sprintf(format, args...)}
}

// LimitOf returns the limit attached to a rejection, if any.
func LimitOf(err error) (int64, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Limit, true
	}
	return 0, false
}

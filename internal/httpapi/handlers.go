package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/auctioneer"
	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/types"
)

var errBadRequest = errors.New("bad request")

// statusFor maps an error kind to the HTTP status returned to the caller.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch engine.KindOf(err) {
	case engine.KindPrecondition, engine.KindNoEligibleLots:
		return http.StatusConflict
	case engine.KindValidation:
		return http.StatusUnprocessableEntity
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	kind := engine.KindOf(err)
	if errors.Is(err, errBadRequest) {
		kind = engine.KindValidation
	}
	resp := types.ErrorResponse{Error: err.Error(), Kind: kind}
	if limit, ok := engine.LimitOf(err); ok {
		resp.Limit = &limit
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// command runs the command built from the request and answers with the
// resulting event.
func command(a *auctioneer.Auctioneer, log *zap.Logger, status int, build func(*http.Request) (engine.Command, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := build(r)
		if err != nil {
			writeError(w, log, err)
			return
		}
		ev, err := a.Do(r.Context(), cmd)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, status, ev)
	}
}

func fixed(t engine.CommandType) func(*http.Request) (engine.Command, error) {
	return func(*http.Request) (engine.Command, error) { return engine.Command{Type: t}, nil }
}

func bidCommand(t engine.CommandType) func(*http.Request) (engine.Command, error) {
	return func(r *http.Request) (engine.Command, error) {
		var req types.BidRequest
		if err := decode(r, &req); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: t, TeamID: req.TeamID, Amount: req.Amount}, nil
	}
}

// editLastBidCommand takes a JSON body, or team_id and bid_amount query
// parameters when the body is empty.
func editLastBidCommand(r *http.Request) (engine.Command, error) {
	if r.ContentLength == 0 && r.URL.Query().Has("team_id") {
		q := r.URL.Query()
		team, err1 := strconv.ParseInt(q.Get("team_id"), 10, 64)
		amount, err2 := strconv.ParseInt(q.Get("bid_amount"), 10, 64)
		if err := errors.Join(err1, err2); err != nil {
			return engine.Command{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return engine.Command{Type: engine.CmdEditLastBid, TeamID: team, Amount: amount}, nil
	}
	return bidCommand(engine.CmdEditLastBid)(r)
}

func jumpCommand(r *http.Request) (engine.Command, error) {
	// The body is optional; chunked requests report no length, so an empty
	// one only shows up as EOF.
	var req types.JumpRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		return engine.Command{}, err
	}
	policy, err := types.ParsePolicy(req.Policy)
	if err != nil {
		return engine.Command{}, err
	}
	return engine.Command{Type: engine.CmdJump, Policy: policy, LotID: req.PlayerID}, nil
}

func sequenceCommand(r *http.Request) (engine.Command, error) {
	var entries []types.OrderEntry
	if err := decode(r, &entries); err != nil {
		return engine.Command{}, err
	}
	return engine.Command{Type: engine.CmdSetSequence, Sequence: types.Sequence(entries)}, nil
}

func Current(a *auctioneer.Auctioneer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := a.View()
		if v.AuctionID == nil {
			writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: "no auction found", Kind: engine.KindNotFound})
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func MaxBid(a *auctioneer.Auctioneer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, log, fmt.Errorf("%w: team id", errBadRequest))
			return
		}
		limit, err := a.MaxBidFor(id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, types.MaxBidResponse{TeamID: id, MaxBid: limit})
	}
}

func History(a *auctioneer.Auctioneer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
		if err != nil {
			writeError(w, log, fmt.Errorf("%w: player id", errBadRequest))
			return
		}
		bids, err := a.BidHistory(r.Context(), id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, bids)
	}
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

func Healthz(a *auctioneer.Auctioneer, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok", "version": a.Version()}
		status := http.StatusOK
		select {
		case <-a.Done():
			resp["status"] = "stopped"
			status = http.StatusServiceUnavailable
		default:
		}
		for name, ping := range checks {
			if err := ping(r.Context()); err != nil {
				resp[name] = err.Error()
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, resp)
	}
}

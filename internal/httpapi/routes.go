package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/auctioneer"
	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/ws"
)

type Options struct {
	OriginPatterns []string
	Checks         map[string]Pinger
}

func SetupRoutes(a *auctioneer.Auctioneer, log *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", Healthz(a, opts.Checks))

	r.Route("/auction", func(r chi.Router) {
		r.Post("/start", command(a, log, http.StatusCreated, fixed(engine.CmdStart)))
		r.Post("/bid", command(a, log, http.StatusOK, bidCommand(engine.CmdBid)))
		r.Post("/sold", command(a, log, http.StatusOK, fixed(engine.CmdSold)))
		r.Post("/unsold", command(a, log, http.StatusOK, fixed(engine.CmdUnsold)))
		r.Post("/next", command(a, log, http.StatusOK, jumpCommand))
		r.Post("/next-random", command(a, log, http.StatusOK, func(*http.Request) (engine.Command, error) {
			return engine.Command{Type: engine.CmdJump, Policy: engine.PolicyRandom}, nil
		}))
		r.Put("/edit-last-bid", command(a, log, http.StatusOK, editLastBidCommand))
		r.Post("/pause", command(a, log, http.StatusOK, fixed(engine.CmdPause)))
		r.Post("/resume", command(a, log, http.StatusOK, fixed(engine.CmdResume)))
		r.Post("/reset", command(a, log, http.StatusOK, fixed(engine.CmdReset)))
		r.Post("/set-auction-order", command(a, log, http.StatusOK, sequenceCommand))

		r.Get("/current", Current(a, log))
		r.Get("/teams/{id}/max-bid", MaxBid(a, log))
		r.Get("/history/{lotID}", History(a, log))
		r.Get("/ws", ws.Handler(a, log, opts.OriginPatterns))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

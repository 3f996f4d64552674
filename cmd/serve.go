package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/digest"
	"github.com/phlwatch/digest-cli/internal/match"
	"github.com/phlwatch/digest-cli/internal/model"
	"github.com/phlwatch/digest-cli/internal/provider"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the digest preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := newProviderClient()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/digest", func(w http.ResponseWriter, req *http.Request) {
			in, err := buildDigestInput(req, client)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = w.Write([]byte(digest.Markdown(*in)))
		})

		r.Get("/subscribers/{email}/preview", func(w http.ResponseWriter, req *http.Request) {
			email := chi.URLParam(req, "email")

			subscribers, err := loadSubscribers(req.Context())
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			var sub *model.Subscriber
			for i := range subscribers {
				if subscribers[i].Email == email {
					sub = &subscribers[i]
					break
				}
			}
			if sub == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "subscriber not found"})
				return
			}

			in, err := buildDigestInput(req, client)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			in.Permits = match.Match(sub.Preference, in.Permits)
			in.Variances = match.Match(sub.Preference, in.Variances)
			in.AreaName = email

			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = w.Write([]byte(digest.Markdown(*in)))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildDigestInput(req *http.Request, client *provider.Client) (*digest.Input, error) {
	now := time.Now().UTC()
	days := queryInt(req, "days", cfg.Digest.LookbackDays)
	minUnits := queryInt(req, "min_units", cfg.Digest.MinUnits)
	since := now.AddDate(0, 0, -days)

	permits, variances, err := fetchClassified(req.Context(), client, since)
	if err != nil {
		return nil, err
	}

	return &digest.Input{
		Permits:   digest.FilterMinUnits(permits, minUnits),
		Variances: variances,
		Start:     since,
		End:       now,
		MinUnits:  minUnits,
		AreaName:  "Citywide",
	}, nil
}

func queryInt(req *http.Request, key string, fallback int) int {
	v := req.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

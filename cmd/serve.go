package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-cli/internal/canonical"
	"github.com/sells-group/address-cli/internal/resolver"
	"github.com/sells-group/address-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the address normalization HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux builds the HTTP API routes over an initialized environment.
func newServeMux(env *appEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /resolve", func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		log := zap.L().With(zap.String("request_id", reqID))

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// {"raw": "..."} alone means raw-string input; a fuller object
		// is treated as structured components.
		var value any = body
		if raw, ok := body["raw"].(string); ok && len(body) == 1 {
			value = raw
		}

		addr, err := env.Canon.Normalize(r.Context(), value)
		if err != nil {
			status, msg := classifyError(err)
			log.Warn("resolve failed",
				zap.Int("status", status),
				zap.Error(err),
			)
			writeError(w, status, msg)
			return
		}
		if addr == nil {
			writeError(w, http.StatusBadRequest, "empty address")
			return
		}

		log.Info("resolved",
			zap.Int64("address_id", addr.ID),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(addr.Flatten())
	})

	mux.HandleFunc("GET /addresses/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid address id")
			return
		}
		addr, err := env.Store.GetAddress(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(addr.Flatten())
	})

	mux.HandleFunc("GET /addresses", func(w http.ResponseWriter, r *http.Request) {
		filter := store.AddressFilter{Limit: 100}
		if q := r.URL.Query().Get("locality"); q != "" {
			filter.Locality = q
		}
		if q := r.URL.Query().Get("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				filter.Limit = n
			}
		}
		if q := r.URL.Query().Get("offset"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				filter.Offset = n
			}
		}
		addrs, err := env.Store.ListAddresses(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list addresses failed")
			return
		}
		out := make([]any, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, a.Flatten())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(out)
	})

	return mux
}

// classifyError maps normalization failures to HTTP statuses: malformed
// input is the caller's fault, unresolvable addresses are unprocessable,
// anything else is ours.
func classifyError(err error) (int, string) {
	var invalidValue *canonical.InvalidValueError
	var invalidNumeric *canonical.InvalidNumericError
	var invalidCode *canonical.InvalidCodeError
	if errors.As(err, &invalidValue) || errors.As(err, &invalidNumeric) || errors.As(err, &invalidCode) {
		return http.StatusBadRequest, err.Error()
	}

	var tooMany *resolver.TooManyResultsError
	var partial *resolver.PartialMatchError
	var approx *resolver.ApproximateMatchError
	if errors.As(err, &tooMany) || errors.As(err, &partial) || errors.As(err, &approx) {
		return http.StatusUnprocessableEntity, err.Error()
	}

	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lumina/pkg/checkpoint"
	"lumina/pkg/orch"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runServe(cmd.Context(), cfgPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func runServe(ctx context.Context, cfgPath, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/messages", a.handleMessage)
	mux.HandleFunc("POST /v1/threads/{thread}/approvals", a.handleApproval)
	mux.HandleFunc("GET /v1/threads/{thread}", a.handleThread)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type messageRequest struct {
	Message string `json:"message"`
}

type approvalRequest struct {
	ApprovalID string `json:"approval_id"`
	Approve    bool   `json:"approve"`
}

type resultResponse struct {
	ThreadID string                      `json:"thread_id"`
	State    string                      `json:"state"`
	Answer   string                      `json:"answer"`
	Steps    int                         `json:"steps"`
	Approval *checkpoint.PendingApproval `json:"approval,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

func (a *app) handleMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		httpError(w, http.StatusBadRequest, "body must be JSON with a non-empty message field")
		return
	}

	res, err := a.orch.HandleMessage(r.Context(), threadID, req.Message)
	a.writeResult(w, res, err)
}

func (a *app) handleApproval(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ApprovalID == "" {
		httpError(w, http.StatusBadRequest, "body must be JSON with an approval_id field")
		return
	}

	res, err := a.orch.ResolveApproval(r.Context(), threadID, req.ApprovalID, req.Approve)
	a.writeResult(w, res, err)
}

func (a *app) handleThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")
	cp, err := a.store.Load(r.Context(), threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		httpError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// writeResult renders an orchestrator result. A failed run that still
// produced a Result is a 200 with state failed; only runs that produced
// nothing are server errors.
func (a *app) writeResult(w http.ResponseWriter, res *orch.Result, err error) {
	if res == nil {
		status := http.StatusInternalServerError
		msg := "internal error"
		if err != nil {
			msg = err.Error()
			if errors.Is(err, checkpoint.ErrNotFound) {
				status = http.StatusNotFound
			}
		}
		httpError(w, status, msg)
		return
	}

	resp := resultResponse{
		ThreadID: res.ThreadID,
		State:    string(res.State),
		Answer:   res.Answer,
		Steps:    res.Steps,
		Approval: res.Approval,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

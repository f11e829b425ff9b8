package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/lbryio/lbry-sdk-sub001/bus"
	"github.com/lbryio/lbry-sdk-sub001/errors"
	"github.com/lbryio/lbry-sdk-sub001/health"
	"github.com/lbryio/lbry-sdk-sub001/natsclient"
	"github.com/lbryio/lbry-sdk-sub001/store"
)

// maxPublishSize bounds the publish request body.
const maxPublishSize = 1 << 20

// statusResponse is the payload served by GET /v1/status.
type statusResponse struct {
	Components map[string]bool           `json:"components"`
	Reports    map[string]map[string]any `json:"reports,omitempty"`
}

// componentResponse is the payload served by GET /v1/components/{name}.
type componentResponse struct {
	Name      string         `json:"name"`
	Running   bool           `json:"running"`
	Status    map[string]any `json:"status,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

// publishRequest is the payload accepted by POST /v1/publish.
type publishRequest struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, statusResponse{
		Components: g.sched.ComponentStatus(),
		Reports:    g.sched.Report(),
	})
}

func (g *Gateway) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	running, err := g.sched.IsRunning(name)
	if err != nil {
		g.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown component %q", name))
		return
	}

	resp := componentResponse{Name: name, Running: running}
	resp.Status = g.sched.Report()[name]
	if lastErr, _ := g.sched.LastError(name); lastErr != nil {
		resp.LastError = lastErr.Error()
	}

	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := g.sched.ComponentStatus()
	reports := g.sched.Report()

	allUp := true
	components := make([]health.Status, 0, len(statuses))
	for name, running := range statuses {
		if !running {
			allUp = false
		}
		components = append(components, health.FromComponent(name, running, reports[name]))
	}

	code := http.StatusOK
	overall := health.NewHealthy("daemon", "All components running")
	if !allUp {
		code = http.StatusServiceUnavailable
		overall = health.NewDegraded("daemon", "One or more components are down")
	}

	g.writeJSON(w, code, map[string]any{
		"status":     overall,
		"components": components,
	})
}

// handlePublish forwards a message to the bus. The operation is gated:
// the bus component must be running and its connection condition must
// hold before the body is even read off the wire.
func (g *Gateway) handlePublish(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishSize+1))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "request body read failed")
		return
	}
	if len(body) > maxPublishSize {
		g.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxPublishSize))
		return
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Subject == "" {
		g.writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	publish := g.sched.Gate(func(ctx context.Context) error {
		return g.publish(ctx, req.Subject, req.Data)
	}, []string{bus.ComponentName}, bus.ConditionConnected)

	if err := publish(r.Context()); err != nil {
		if stderrors.Is(err, errors.ErrPreconditionNotMet) {
			g.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		g.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	g.writeJSON(w, http.StatusAccepted, map[string]any{
		"subject":   req.Subject,
		"published": true,
	})
}

// publish sends the message and, when the store component is present,
// records the last published subject. A daemon running without the
// store still publishes; history is simply not kept.
func (g *Gateway) publish(ctx context.Context, subject string, data []byte) error {
	handle, err := g.sched.Handle(bus.ComponentName)
	if err != nil {
		return err
	}
	client, ok := handle.(*natsclient.Client)
	if !ok || client == nil {
		return errors.WrapTransient(errors.ErrNoConnection, ComponentName, "publish", "bus handle resolve")
	}

	if err := client.Publish(subject, data); err != nil {
		return err
	}

	if g.sched.Has(store.ComponentName) {
		if running, _ := g.sched.IsRunning(store.ComponentName); running {
			g.recordPublish(ctx, subject)
		}
	}
	return nil
}

func (g *Gateway) recordPublish(ctx context.Context, subject string) {
	handle, err := g.sched.Handle(store.ComponentName)
	if err != nil {
		return
	}
	kv, ok := handle.(jetstream.KeyValue)
	if !ok || kv == nil {
		return
	}

	record, err := json.Marshal(map[string]any{
		"subject": subject,
		"at":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if _, err := kv.Put(ctx, "last-publish", record); err != nil {
		g.logger.Warn("Publish history write failed", "error", err)
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("Response encode failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, code int, message string) {
	g.requestsFailed.Add(1)
	g.writeJSON(w, code, map[string]string{"error": message})
}

// kioskbus-demo wires a minimal kiosk scenario against a live NATS server:
// a menu agent answering searches on a queue group, an orchestrator watching
// vision events, and a publisher driving both. It exists to exercise the
// client against a real broker; run it with a local nats-server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	kioskbus "github.com/kioskly/kioskbus-go"
	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/health"
	"github.com/kioskly/kioskbus-go/messaging"
)

func main() {
	var (
		url  = flag.String("url", "nats://localhost:4222", "broker URL")
		name = flag.String("name", "kioskbus-demo", "client display name")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := run(*url, *name, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(url, name string, logger *slog.Logger) error {
	cfg := kioskbus.DefaultConfig()
	cfg.URL = url
	cfg.Name = name

	client, err := kioskbus.Connect(cfg, kioskbus.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Disconnect()

	ctx := context.Background()

	if err := client.EnsureStream(ctx, "KIOSK_EVENTS", []string{"kiosk.vision.>", "kiosk.voice.>"}); err != nil {
		return err
	}

	// menu agent: answers searches, load-balanced across instances
	_, err = client.ReplyHandler(contracts.AgentSubject("menu", "search"), messaging.RequestHandlerFunc(
		func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
			var search contracts.MenuSearchRequest
			if err := contracts.PayloadInto(req, &search); err != nil {
				return nil, err
			}
			logger.Info("menu search", "query", search.Query, "traceId", req.TraceID)
			payload, err := contracts.ToPayload(contracts.MenuSearchResponse{
				Status:       "success",
				Items:        []any{map[string]any{"name": "Classic Burger", "price": 8.50}},
				TotalMatches: 1,
			})
			if err != nil {
				return nil, err
			}
			return contracts.NewResponse("success", payload, req), nil
		}),
		messaging.WithQueueGroup("menu-workers"))
	if err != nil {
		return err
	}

	// orchestrator: watches every vision event
	_, err = client.Subscribe("kiosk.vision.>", messaging.EnvelopeHandlerFunc(
		func(ctx context.Context, subject string, env *contracts.Envelope) error {
			logger.Info("vision event",
				"subject", subject,
				"event", env.Event(),
				"sessionId", env.SessionID,
				"traceId", env.TraceID,
			)
			return nil
		}))
	if err != nil {
		return err
	}

	sessionID := "demo-session"

	payload, err := contracts.ToPayload(contracts.PersonDetectedPayload{
		Event:              "person_detected",
		Confidence:         0.97,
		FaceDetected:       true,
		EstimatedAgeGroup:  "adult",
		EstimatedPartySize: 2,
	})
	if err != nil {
		return err
	}
	if _, err := client.PublishEvent(ctx, "vision", "person_detected", payload, sessionID); err != nil {
		return err
	}

	req := contracts.NewRequest("search", map[string]any{"query": "burger", "limit": 5}, sessionID)
	reply, err := client.Request(ctx, contracts.AgentSubject("menu", "search"), req, 5*time.Second)
	if err != nil {
		return err
	}
	logger.Info("search reply", "status", reply.Status(), "traceId", reply.TraceID)

	checks := health.NewRegistry()
	checks.Register(health.NewBrokerChecker(client.Transport()))
	overall, _ := checks.Check(ctx)
	logger.Info("demo running, ctrl-c to exit", "health", string(overall))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return nil
}

// Package kioskbus is the messaging layer shared by all kiosk components: a
// uniform envelope format and a broker client implementing publish/subscribe
// and request/reply over NATS, with queue-group load balancing and durable
// stream provisioning.
//
// A component connects once, registers its handlers, and publishes or
// requests through the same client:
//
//	client, err := kioskbus.Connect(kioskbus.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	client.Subscribe("kiosk.vision.>", messaging.EnvelopeHandlerFunc(
//		func(ctx context.Context, subject string, env *contracts.Envelope) error {
//			// react to the event
//			return nil
//		}))
//
//	req := contracts.NewRequest("search", map[string]any{"query": "burger"}, sessionID)
//	reply, err := client.Request(ctx, contracts.AgentSubject("menu", "search"), req, 5*time.Second)
//
// The envelope contract lives in the contracts package, the interaction
// patterns in messaging, and the broker bindings in transports.
package kioskbus

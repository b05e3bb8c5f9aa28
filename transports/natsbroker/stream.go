package natsbroker

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/kioskly/kioskbus-go/contracts"
)

// EnsureStream idempotently declares a JetStream stream capturing the given
// subjects. A stream that already exists is success; any other provisioning
// failure surfaces as a *contracts.StreamProvisionError.
func (t *Transport) EnsureStream(ctx context.Context, name string, subjects []string) error {
	js, err := jetstream.New(t.nc)
	if err != nil {
		return &contracts.StreamProvisionError{Stream: name, Err: err}
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			t.logger.Debug("stream already exists", "stream", name)
			return nil
		}
		return &contracts.StreamProvisionError{Stream: name, Err: err}
	}

	t.logger.Info("stream created", "stream", name, "subjects", subjects)
	return nil
}

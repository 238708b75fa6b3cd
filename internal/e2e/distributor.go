package e2e

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	kerrors "github.com/PolarWolf314/tiaki/internal/errors"
)

// maxConcurrentWraps bounds the RSA operations run at once by PrepareSecrets.
const maxConcurrentWraps = 8

// SecretSource yields fresh channel secrets.
type SecretSource interface {
	GenerateRandomSecret() (string, error)
}

// Distributor wraps one fresh channel secret for every participant device.
type Distributor struct {
	secrets  SecretSource
	envelope *Envelope
}

func NewDistributor(secrets SecretSource, envelope *Envelope) *Distributor {
	return &Distributor{secrets: secrets, envelope: envelope}
}

// PrepareSecrets returns one envelope per device, in input order, all
// carrying the same secret. If any device cannot receive an envelope, or
// any wrap fails, nothing is returned.
func (d *Distributor) PrepareSecrets(ctx context.Context, devices []DeviceInfo) ([]ParticipantChannelDeviceSecret, error) {
	var missing []string
	for _, device := range devices {
		if !device.canReceiveEnvelope() {
			missing = append(missing, device.DeviceID)
		}
	}
	if len(missing) > 0 {
		return nil, kerrors.Wrap(kerrors.ErrParticipantsMissingE2EEncryption,
			fmt.Errorf("devices without RSA messaging keys: %s", strings.Join(missing, ", ")))
	}

	results := make([]ParticipantChannelDeviceSecret, len(devices))
	if len(devices) == 0 {
		return results, nil
	}

	secret, err := d.secrets.GenerateRandomSecret()
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWraps)
	for i, device := range devices {
		i, device := i, device
		g.Go(func() error {
			envelope, err := d.envelope.EncryptChannelSecret(gctx, secret,
				device.MessagingKeys.KeyID, device.MessagingKeys.PublicKey)
			if err != nil {
				return fmt.Errorf("device %q: %w", device.DeviceID, err)
			}
			results[i] = ParticipantChannelDeviceSecret{
				GidUUID:  device.GidUUID,
				DeviceID: device.DeviceID,
				Secret:   envelope,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if complete := countComplete(results); complete != len(devices) {
		return nil, kerrors.Wrap(kerrors.ErrParticipantsMissingE2EEncryption,
			fmt.Errorf("prepared %d envelopes for %d devices", complete, len(devices)))
	}

	return results, nil
}

func countComplete(results []ParticipantChannelDeviceSecret) int {
	n := 0
	for _, r := range results {
		if r.Secret.EncryptedSecret != "" {
			n++
		}
	}
	return n
}

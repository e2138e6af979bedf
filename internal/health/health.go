// Package health implements an external smoke test against a running
// pixnetd instance: dial, complete the handshake, and confirm an initial
// PIXNET frame arrives within a deadline.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pixnet/pixnetd/internal/pixclient"
)

// CheckServer dials addr, performs the PIXHND/PIXACK handshake, and waits
// for the first PIXNET frame. It reports the first error encountered, or
// nil if a frame arrived before ctx's deadline.
func CheckServer(ctx context.Context, addr string) error {
	client, err := pixclient.Connect(addr, "pixnet-health/1.0", 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(0, "health check complete")

	select {
	case frame, ok := <-client.Frames:
		if !ok {
			return fmt.Errorf("connection closed before first frame")
		}
		if frame.Width == 0 || frame.Height == 0 {
			return fmt.Errorf("initial frame has zero dimensions")
		}
		return nil
	case err := <-client.Errors:
		return fmt.Errorf("receive: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

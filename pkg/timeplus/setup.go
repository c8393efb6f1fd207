package timeplus

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SetupStreams ensures every stream the engine writes to exists with
// the expected schema. Safe to call on every start.
func (c *Client) SetupStreams(ctx context.Context) error {
	logrus.Info("Setting up Timeplus streams")

	if err := c.CreateMutableStream(ctx, AlertsStream, GetAlertsSchema(), GetAlertsPrimaryKey()); err != nil {
		return fmt.Errorf("failed to set up alerts stream: %w", err)
	}

	if err := c.CreateMutableStream(ctx, EmergencyEventsStream, GetEmergencyEventsSchema(), GetEmergencyEventsPrimaryKey()); err != nil {
		return fmt.Errorf("failed to set up emergency events stream: %w", err)
	}

	return nil
}

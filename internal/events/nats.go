package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rxtech-lab/vesting-mcp/internal/metrics"
	"github.com/sirupsen/logrus"
)

const connectTimeout = 10 * time.Second

// Connect opens a NATS connection that reconnects forever and reports its state
// through the connection status gauge.
func Connect(url string, logger *logrus.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("vestingd"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	logger.WithField("url", conn.ConnectedUrl()).Info("connected to NATS")
	return conn, nil
}

package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"airsafe_tracker/internal/table"
	"airsafe_tracker/internal/target"
)

// NATS publishes the kepler datasets of each snapshot on <prefix>.datasets
// and every changed aircraft on <prefix>.targets.<category>.<icao>.
type NATS struct {
	conn    *nats.Conn
	prefix  string
	changes *table.Changes
}

// DialNATS connects to url and returns a sink publishing under prefix.
func DialNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("airsafe-tracker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zap.L().Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "connect nats %s", url)
	}
	return NewNATS(nc, prefix), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = "airsafe"
	}
	return &NATS{conn: nc, prefix: prefix, changes: table.NewChanges()}
}

func (n *NATS) Name() string { return "nats" }

// DatasetsSubject is the subject carrying full snapshots.
func (n *NATS) DatasetsSubject() string { return n.prefix + ".datasets" }

// TargetSubject is the subject carrying updates for one aircraft.
func (n *NATS) TargetSubject(tg target.Target) string {
	return n.prefix + ".targets." + string(tg.CollectionType) + "." + tg.ICAOAddress
}

func (n *NATS) Publish(_ context.Context, snap table.Snapshot) error {
	data, err := json.Marshal(Kepler(snap))
	if err != nil {
		return eris.Wrap(err, "marshal datasets")
	}
	if err := n.conn.Publish(n.DatasetsSubject(), data); err != nil {
		return eris.Wrap(err, "publish datasets")
	}

	changed := n.changes.Since(snap)
	for _, tg := range changed {
		payload, err := json.Marshal(tg)
		if err != nil {
			return eris.Wrapf(err, "marshal %s", tg.ICAOAddress)
		}
		if err := n.conn.Publish(n.TargetSubject(tg), payload); err != nil {
			n.changes.Forget(changed)
			return eris.Wrapf(err, "publish %s", tg.ICAOAddress)
		}
	}
	return nil
}

func (n *NATS) PublishHistory(_ context.Context, targets []target.Target) error {
	data, err := json.Marshal(targets)
	if err != nil {
		return eris.Wrap(err, "marshal history")
	}
	return eris.Wrap(n.conn.Publish(n.prefix+".history", data), "publish history")
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

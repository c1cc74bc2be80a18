package recorder

import (
	"context"
	"errors"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/acmeview/view"
)

type QuestDBConfig struct {
	Address string
	Table   string

	AutoFlushRows int
	RetryTimeout  time.Duration
}

func NewDefaultQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address: "localhost:9000",
		Table:   "signals",

		AutoFlushRows: 75_000,
		RetryTimeout:  time.Second,
	}
}

// QuestDB writes every update as a row of the configured table,
// through the InfluxDB line protocol over HTTP.
type QuestDB struct {
	cfg *QuestDBConfig

	senderPool *qdb.LineSenderPool
	sender     qdb.LineSender
}

func NewQuestDB(cfg *QuestDBConfig) *QuestDB {
	return &QuestDB{
		cfg: cfg,
	}
}

func (q *QuestDB) Init(ctx context.Context) error {
	senderPool, err := qdb.PoolFromOptions(
		qdb.WithAddress(q.cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(q.cfg.AutoFlushRows),
		qdb.WithRetryTimeout(q.cfg.RetryTimeout),
	)
	if err != nil {
		return err
	}
	q.senderPool = senderPool

	sender, err := senderPool.Sender(ctx)
	if err != nil {
		return errors.Join(err, senderPool.Close(ctx))
	}
	q.sender = sender

	return nil
}

func (q *QuestDB) Write(ctx context.Context, update view.Update) error {
	row := q.sender.Table(q.cfg.Table).
		Symbol("frame", update.FrameName).
		Symbol("signal", update.Signal).
		Symbol("source", update.Source.String()).
		Symbol("state", update.State.String()).
		Float64Column("value", update.Value).
		Int64Column("frame_id", int64(update.FrameID)).
		Int64Column("revision", int64(update.Revision))

	if update.Label != "" {
		row = row.StringColumn("label", update.Label)
	}

	return row.At(ctx, update.Time)
}

func (q *QuestDB) Flush(ctx context.Context) error {
	if q.sender == nil {
		return nil
	}
	return q.sender.Flush(ctx)
}

func (q *QuestDB) Close(ctx context.Context) error {
	if q.senderPool == nil {
		return nil
	}
	return errors.Join(q.sender.Close(ctx), q.senderPool.Close(ctx))
}

// Package eventbus публикует ход запусков в NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ResultEvent: сообщение о результате одного аккаунта.
type ResultEvent struct {
	RunID     string                 `json:"run_id"`
	ActionID  int                    `json:"action_id"`
	Result    models.ExecutionResult `json:"result"`
	Timestamp int64                  `json:"timestamp"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher реализует orchestrator.ResultSink: каждый результат уходит в <subject>.result,
// итог запуска — в <subject>.summary.
type Publisher struct {
	conn    conn
	nc      *nats.Conn
	subject string
}

var _ orchestrator.ResultSink = (*Publisher)(nil)

// NewPublisher подключается к NATS.
func NewPublisher(natsURL, subject string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("atg-engage"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info().Str("url", natsURL).Str("subject", subject).Msg("[NATS] подключение установлено")
	p := newPublisher(nc, subject)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string) *Publisher {
	if subject == "" {
		subject = "engage.runs"
	}
	return &Publisher{conn: c, subject: subject}
}

// Append публикует результат аккаунта.
func (p *Publisher) Append(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
	data, err := json.Marshal(ResultEvent{RunID: runID, ActionID: actionID, Result: res, Timestamp: time.Now().Unix()})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject+".result", data); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// PublishSummary публикует итог запуска.
func (p *Publisher) PublishSummary(summary models.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject+".summary", data); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	log.Debug().Str("run_id", summary.RunID).Str("state", string(summary.State)).Msg("[NATS] итог запуска опубликован")
	return nil
}

// Close сбрасывает буфер и закрывает соединение.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc = nil
		log.Info().Msg("[NATS] соединение закрыто")
	}
}

package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"atg_engage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, message{subject, data})
	return nil
}

func TestAppendPublishesResult(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "")
	err := p.Append(context.Background(), "run-1", 3, models.ExecutionResult{AccountID: "a", Outcome: models.OutcomeSkipped, Reason: models.ReasonNoDiscussion})
	require.NoError(t, err)
	require.Len(t, c.msgs, 1)
	assert.Equal(t, "engage.runs.result", c.msgs[0].subject)

	var ev ResultEvent
	require.NoError(t, json.Unmarshal(c.msgs[0].data, &ev))
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, 3, ev.ActionID)
	assert.Equal(t, models.ReasonNoDiscussion, ev.Result.Reason)
}

func TestPublishSummary(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "custom")
	require.NoError(t, p.PublishSummary(models.RunSummary{RunID: "r", State: models.RunCompleted}))
	assert.Equal(t, "custom.summary", c.msgs[0].subject)
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("closed")}, "x")
	assert.Error(t, p.Append(context.Background(), "r", 1, models.ExecutionResult{}))
	assert.Error(t, p.PublishSummary(models.RunSummary{}))
	p.Close()
}

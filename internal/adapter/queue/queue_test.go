package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acks, nacks int
	requeue     bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acks++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(_ uint64, requeue bool) error { return f.Nack(0, false, requeue) }

type stubSweeper struct {
	n     int
	err   error
	calls int
}

func (s *stubSweeper) Run(context.Context) (int, error) {
	s.calls++
	return s.n, s.err
}

func delivery(ack *fakeAck, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

func TestJSONHandler(t *testing.T) {
	var got usecase.SweepCmd
	h := JSONHandler[usecase.SweepCmd]{HandleFunc: func(_ context.Context, cmd usecase.SweepCmd) error {
		got = cmd
		return nil
	}}

	require.NoError(t, h.Handle(context.Background(), amqp.Delivery{
		Body: []byte(`{"requestedBy":"cron","requestedAt":"2025-03-01T10:00:00Z"}`),
	}))
	assert.Equal(t, "cron", got.RequestedBy)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), got.RequestedAt)

	err := h.Handle(context.Background(), amqp.Delivery{Body: []byte(`{`)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSweepHandler(t *testing.T) {
	ctx := context.Background()

	s := &stubSweeper{n: 3}
	require.NoError(t, NewSweepHandler(s).HandleSweep(ctx, usecase.SweepCmd{RequestedBy: "test"}))
	assert.Equal(t, 1, s.calls)

	held := &stubSweeper{err: usecase.ErrSweepInProgress}
	assert.NoError(t, NewSweepHandler(held).HandleSweep(ctx, usecase.SweepCmd{}))

	boom := errors.New("db down")
	assert.ErrorIs(t, NewSweepHandler(&stubSweeper{err: boom}).HandleSweep(ctx, usecase.SweepCmd{}), boom)
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(nil, WithTimeout(time.Second))
	l := logging.New("test")
	sweep := &stubSweeper{}
	h := JSONHandler[usecase.SweepCmd]{HandleFunc: NewSweepHandler(sweep).HandleSweep}

	t.Run("ack on success", func(t *testing.T) {
		ack := &fakeAck{}
		r.dispatch(context.Background(), l, h, delivery(ack, `{"requestedBy":"x"}`))
		assert.Equal(t, 1, ack.acks)
		assert.Zero(t, ack.nacks)
	})

	t.Run("malformed is dropped", func(t *testing.T) {
		ack := &fakeAck{}
		r.dispatch(context.Background(), l, h, delivery(ack, `not json`))
		assert.Equal(t, 1, ack.nacks)
		assert.False(t, ack.requeue)
	})

	t.Run("failure is requeued once", func(t *testing.T) {
		failing := JSONHandler[usecase.SweepCmd]{HandleFunc: NewSweepHandler(&stubSweeper{err: errors.New("db down")}).HandleSweep}

		ack := &fakeAck{}
		r.dispatch(context.Background(), l, failing, delivery(ack, `{}`))
		assert.True(t, ack.requeue)

		ack = &fakeAck{}
		d := delivery(ack, `{}`)
		d.Redelivered = true
		r.dispatch(context.Background(), l, failing, d)
		assert.False(t, ack.requeue)
	})

	t.Run("handler survives cancelled parent", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var handlerErr error
		probe := JSONHandler[usecase.SweepCmd]{HandleFunc: func(ctx context.Context, _ usecase.SweepCmd) error {
			handlerErr = ctx.Err()
			return nil
		}}
		ack := &fakeAck{}
		r.dispatch(ctx, l, probe, delivery(ack, `{}`))
		assert.NoError(t, handlerErr)
		assert.Equal(t, 1, ack.acks)
	})
}

func TestRouterDispatch_RequeueDisabled(t *testing.T) {
	r := NewRouter(nil, WithRequeue(false))
	failing := JSONHandler[usecase.SweepCmd]{HandleFunc: NewSweepHandler(&stubSweeper{err: errors.New("db down")}).HandleSweep}

	ack := &fakeAck{}
	r.dispatch(context.Background(), logging.New("test"), failing, delivery(ack, `{}`))
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestRouterStart_NilChannel(t *testing.T) {
	assert.Error(t, NewRouter(nil).Start(context.Background()))
}

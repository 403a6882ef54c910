package rpc

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/token"
)

// recvFrame pops the next queued frame. Broadcasts enqueue
// synchronously, so anything published is already waiting.
func recvFrame(t *testing.T, conn *Connection) map[string]any {
	t.Helper()
	select {
	case payload := <-conn.Outbound():
		var frame map[string]any
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func requireNoFrame(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case payload := <-conn.Outbound():
		t.Fatalf("unexpected frame: %s", payload)
	default:
	}
}

func newTestSubscriber(t *testing.T, sm *SubscriptionManager, streams, accounts []string) *Connection {
	t.Helper()
	conn := newConnection(uuid.NewString())
	require.NoError(t, conn.Subscribe(streams, accounts))
	sm.Add(conn)
	return conn
}

func TestPublisherFanout(t *testing.T) {
	tip := &token.Transaction{
		ID: "t-1", UserID: "u1", BeneficiaryID: "u2",
		Type: token.TypeTip, Amount: 5,
	}

	t.Run("TransactionsStream", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		conn := newTestSubscriber(t, sm, []string{StreamTransactions}, nil)
		pub := NewPublisher(sm, nil)

		pub.TransactionAdded(tip)

		frame := recvFrame(t, conn)
		assert.Equal(t, "transaction", frame["type"])
		tx := frame["transaction"].(map[string]any)
		assert.Equal(t, "t-1", tx["id"])
		requireNoFrame(t, conn)
	})

	t.Run("AccountMatchesEitherSide", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		sender := newTestSubscriber(t, sm, nil, []string{"u1"})
		receiver := newTestSubscriber(t, sm, nil, []string{"u2"})
		bystander := newTestSubscriber(t, sm, nil, []string{"u3"})
		pub := NewPublisher(sm, nil)

		pub.TransactionAdded(tip)

		assert.Equal(t, "transaction", recvFrame(t, sender)["type"])
		assert.Equal(t, "transaction", recvFrame(t, receiver)["type"])
		requireNoFrame(t, bystander)
	})

	t.Run("HoldsStream", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		conn := newTestSubscriber(t, sm, []string{StreamHolds}, nil)
		pub := NewPublisher(sm, nil)

		hold := &token.Transaction{
			ID: "h-1", UserID: "u1", BeneficiaryID: "m1",
			Type: token.TypeHold, Amount: 10, State: token.HoldCaptured,
		}
		pub.HoldChanged(ledger.HoldEventCaptured, hold)

		frame := recvFrame(t, conn)
		assert.Equal(t, "hold", frame["type"])
		assert.Equal(t, "captured", frame["event"])
	})

	t.Run("SweepsStream", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		conn := newTestSubscriber(t, sm, []string{StreamSweeps}, nil)
		pub := NewPublisher(sm, nil)

		pub.SweepCompleted(&ledger.SweepSummary{Processed: 3, Reversed: 2})

		frame := recvFrame(t, conn)
		assert.Equal(t, "sweep", frame["type"])
		summary := frame["summary"].(map[string]any)
		assert.Equal(t, float64(3), summary["processed"])
	})

	t.Run("OtherStreamsStaySilent", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		conn := newTestSubscriber(t, sm, []string{StreamSweeps}, nil)
		pub := NewPublisher(sm, nil)

		pub.TransactionAdded(tip)
		requireNoFrame(t, conn)
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		sm := NewSubscriptionManager(nil, nil)
		conn := newTestSubscriber(t, sm, []string{StreamTransactions}, nil)
		pub := NewPublisher(sm, nil)

		pub.TransactionAdded(tip)
		recvFrame(t, conn)

		conn.Unsubscribe([]string{StreamTransactions}, nil)
		pub.TransactionAdded(tip)
		requireNoFrame(t, conn)
	})
}

func TestSubscribeRejectsUnknownStream(t *testing.T) {
	conn := newConnection("c1")
	err := conn.Subscribe([]string{"bogus"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")

	// The failed call must not partially apply.
	assert.False(t, conn.subscribedTo("bogus"))
}

func TestSlowConsumerDisconnected(t *testing.T) {
	sm := NewSubscriptionManager(nil, nil)
	conn := newTestSubscriber(t, sm, []string{StreamTransactions}, nil)
	pub := NewPublisher(sm, nil)

	// Fill the queue without draining it, then overflow it.
	for i := 0; i < sendBufferSize+1; i++ {
		pub.TransactionAdded(&token.Transaction{
			ID: fmt.Sprintf("t-%d", i), UserID: "u1",
			Type: token.TypeCreditPaid, Amount: 1,
		})
	}

	assert.Equal(t, 0, sm.ClientCount())
	select {
	case <-conn.Done():
	default:
		t.Fatal("overflowed connection was not closed")
	}
}

func TestCloseAll(t *testing.T) {
	sm := NewSubscriptionManager(nil, nil)
	a := newTestSubscriber(t, sm, []string{StreamTransactions}, nil)
	b := newTestSubscriber(t, sm, nil, []string{"u1"})
	require.Equal(t, 2, sm.ClientCount())

	sm.CloseAll()

	assert.Equal(t, 0, sm.ClientCount())
	for _, conn := range []*Connection{a, b} {
		select {
		case <-conn.Done():
		default:
			t.Fatal("connection still open after CloseAll")
		}
	}
}

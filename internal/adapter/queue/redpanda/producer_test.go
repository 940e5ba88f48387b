package redpanda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerRejectsEmptyBrokers(t *testing.T) {
	_, err := NewProducer(nil)
	require.Error(t, err)
}

func TestProducerTransactionChanSerializesOneTransactionAtATime(t *testing.T) {
	p := &Producer{transactionChan: make(chan struct{}, 1)}

	select {
	case p.transactionChan <- struct{}{}:
	default:
		t.Fatal("expected to acquire the transaction slot")
	}

	select {
	case p.transactionChan <- struct{}{}:
		t.Fatal("transaction slot should already be held")
	default:
	}

	<-p.transactionChan

	select {
	case p.transactionChan <- struct{}{}:
	default:
		t.Fatal("expected to reacquire the transaction slot after release")
	}
}

func TestProducerCloseIsSafeOnNilClient(t *testing.T) {
	p := &Producer{}
	assert.NoError(t, p.Close())
}

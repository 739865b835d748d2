package natsclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchstream/writeback/errors"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NotNil(t, client)
	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(10),
		WithReconnectWait(5*time.Second),
		WithPingInterval(time.Minute),
		WithTimeout(3*time.Second),
		WithDrainTimeout(15*time.Second),
		WithCredentials("svc", "secret"),
		WithClientName("writebackd"),
		WithCompression(true),
		WithCircuitBreakerThreshold(3),
		WithMaxBackoff(30*time.Second),
		WithHealthCheckInterval(0),
	)
	require.NoError(t, err)

	assert.Equal(t, 10, client.maxReconnects)
	assert.Equal(t, 5*time.Second, client.reconnectWait)
	assert.Equal(t, time.Minute, client.pingInterval)
	assert.Equal(t, 3*time.Second, client.timeout)
	assert.Equal(t, 15*time.Second, client.drainTimeout)
	assert.Equal(t, "svc", client.username)
	assert.Equal(t, "writebackd", client.clientName)
	assert.True(t, client.compression)
	assert.Equal(t, int32(3), client.circuitThreshold)
	assert.Equal(t, 30*time.Second, client.maxBackoff)
	assert.Equal(t, time.Duration(0), client.healthInterval)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{name: "nil logger", opt: WithLogger(nil)},
		{name: "max reconnects below -1", opt: WithMaxReconnects(-2)},
		{name: "negative reconnect wait", opt: WithReconnectWait(-time.Second)},
		{name: "zero ping interval", opt: WithPingInterval(0)},
		{name: "zero timeout", opt: WithTimeout(0)},
		{name: "empty credentials", opt: WithCredentials("", "")},
		{name: "empty token", opt: WithToken("")},
		{name: "zero circuit threshold", opt: WithCircuitBreakerThreshold(0)},
		{name: "zero max backoff", opt: WithMaxBackoff(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	// Below the threshold the circuit stays closed.
	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	// Backoff caps at the configured maximum.
	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			client.recordFailure()
		}
	}
	assert.LessOrEqual(t, client.Backoff(), time.Minute)
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		initialStatus  ConnectionStatus
		action         func(*Client)
		expectedStatus ConnectionStatus
	}{
		{
			name:          "disconnected to connecting",
			initialStatus: StatusDisconnected,
			action: func(c *Client) {
				c.setStatus(StatusConnecting)
			},
			expectedStatus: StatusConnecting,
		},
		{
			name:          "connecting to connected",
			initialStatus: StatusConnecting,
			action: func(c *Client) {
				c.setStatus(StatusConnected)
			},
			expectedStatus: StatusConnected,
		},
		{
			name:          "connected to reconnecting",
			initialStatus: StatusConnected,
			action: func(c *Client) {
				c.setStatus(StatusReconnecting)
			},
			expectedStatus: StatusReconnecting,
		},
		{
			name:          "any to circuit open",
			initialStatus: StatusConnected,
			action: func(c *Client) {
				for i := 0; i < 5; i++ {
					c.recordFailure()
				}
			},
			expectedStatus: StatusCircuitOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient("nats://localhost:4222")
			require.NoError(t, err)
			client.setStatus(tt.initialStatus)

			tt.action(client)

			assert.Equal(t, tt.expectedStatus, client.Status())
		})
	}
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestConcurrentFailures(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.recordFailure()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), client.Failures())
	assert.Equal(t, StatusCircuitOpen, client.Status())
}

func TestWaitForConnection_Timeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOperationsRejectedWhenDisconnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()

	err = client.PublishMsg(ctx, &nats.Msg{Subject: "wb.user.create.usr001abc"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsInfrastructure(err))

	_, err = client.StreamNames(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.GetKeyValueBucket(ctx, "writeback-cache")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOperationsRejectedWhenCircuitOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	ctx := context.Background()

	err = client.PublishMsg(ctx, &nats.Msg{Subject: "wb.user.create.usr001abc"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, errors.IsInfrastructure(err))

	err = client.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBuildConnectionOptions(t *testing.T) {
	base, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	baseCount := len(base.ConnectionOptions())

	withAuth, err := NewClient("nats://localhost:4222",
		WithCredentials("svc", "secret"),
		WithToken("tok"),
		WithClientName("writebackd"),
		WithCompression(true),
	)
	require.NoError(t, err)

	assert.Equal(t, baseCount+4, len(withAuth.ConnectionOptions()))
}

func TestGetStatus(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client.recordFailure()
	status := client.GetStatus()

	assert.Equal(t, StatusDisconnected, status.Status)
	assert.Equal(t, int32(1), status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
	assert.Equal(t, time.Duration(0), status.RTT)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, client.Close(ctx))
	assert.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestStopConsumers_Empty(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	// Must not panic with no consumers registered.
	client.StopConsumers()
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.False(t, isAlreadyExistsError(fmt.Errorf("timeout")))
	assert.True(t, isAlreadyExistsError(fmt.Errorf("stream name already in use")))
	assert.True(t, isAlreadyExistsError(fmt.Errorf("bucket name already in use")))
	assert.True(t, isAlreadyExistsError(fmt.Errorf("resource already exists")))
}

func TestIsKVNotFoundError(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.False(t, IsKVNotFoundError(fmt.Errorf("timeout")))
	assert.True(t, IsKVNotFoundError(errors.ErrKeyNotFound))
	assert.True(t, IsKVNotFoundError(fmt.Errorf("nats: key not found")))
	assert.True(t, IsKVNotFoundError(fmt.Errorf("API error code 10037")))
}

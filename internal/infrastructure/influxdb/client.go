package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// closeDrainTimeout bounds how long Close waits for the last batch
	// errors to be counted.
	closeDrainTimeout = 2 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	maxAddress = 0x7f
)

// Target identifies the MCU whose telemetry a client records. Its bus and
// address are attached to every point as default tags.
type Target struct {
	Bus     int
	Address uint16
}

func (t Target) validate() error {
	if t.Bus < 0 {
		return fmt.Errorf("%w: bus %d", ErrInvalidTarget, t.Bus)
	}
	if t.Address > maxAddress {
		return fmt.Errorf("%w: address 0x%02x is not a 7-bit address", ErrInvalidTarget, t.Address)
	}
	return nil
}

func (t Target) tags() map[string]string {
	return map[string]string{
		"bus":     fmt.Sprint(t.Bus),
		"address": fmt.Sprintf("0x%02x", t.Address),
	}
}

// Client records register telemetry for one MCU.
//
// Writes are non-blocking and batched by the underlying WriteAPI. Batches
// rejected by the server are counted and reported by the next Flush or
// Close as ErrWriteFailed; SetOnError additionally sees each failure as it
// happens.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	target   Target

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
	failures  int
	lastErr   error

	// errorsDone is closed when the WriteAPI error channel is drained.
	errorsDone chan struct{}
}

// Connect pings the server and opens a batching write API whose points
// carry target's bus and address tags.
func Connect(cfg config.InfluxDBConfig, target Target) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if err := target.validate(); err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)). // #nosec G115 -- positive, checked above
		SetFlushInterval(uint(time.Duration(flushInterval) * time.Second / time.Millisecond))
	for k, v := range target.tags() {
		opts.AddDefaultTag(k, v)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:     client,
		writeAPI:   client.WriteAPI(cfg.Org, cfg.Bucket),
		target:     target,
		connected:  true,
		errorsDone: make(chan struct{}),
	}
	go c.handleWriteErrors(c.writeAPI.Errors(), c.errorsDone)

	return c, nil
}

// Target returns the MCU this client records.
func (c *Client) Target() Target {
	return c.target
}

// handleWriteErrors counts batch failures until errs is closed.
func (c *Client) handleWriteErrors(errs <-chan error, done chan<- struct{}) {
	defer close(done)
	for err := range errs {
		c.mu.Lock()
		c.failures++
		c.lastErr = err
		callback := c.onError
		c.mu.Unlock()

		if callback != nil {
			callback(err)
		}
	}
}

// takeWriteFailure returns the failures counted since the last call as a
// single ErrWriteFailed, or nil.
func (c *Client) takeWriteFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %d batch(es) rejected for bus %d address 0x%02x, last: %w",
		ErrWriteFailed, c.failures, c.target.Bus, c.target.Address, c.lastErr)
	c.failures, c.lastErr = 0, nil
	return err
}

// Flush sends pending points and reports batches rejected since the
// previous Flush. It is a no-op after Close.
func (c *Client) Flush() error {
	if c.writeAPI == nil || !c.IsConnected() {
		return nil
	}
	c.writeAPI.Flush()
	return c.takeWriteFailure()
}

// Close flushes pending points, shuts the client down and reports any
// batches that were rejected and not yet returned by Flush.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()

	if c.errorsDone != nil {
		select {
		case <-c.errorsDone:
		case <-time.After(closeDrainTimeout):
		}
	}
	return c.takeWriteFailure()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports whether Close has not been called. It does not ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback invoked for each rejected batch.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

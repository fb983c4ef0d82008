// Package telemetry polls the status of one motor at a fixed interval.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/stsjog/pkg/session"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 200 * time.Millisecond

// Reader reads a status snapshot. *session.Controller satisfies it.
type Reader interface {
	ReadStatus(ctx context.Context, id int) (session.Status, error)
}

// Sample is one polled status.
type Sample struct {
	ID        int
	Status    session.Status
	Timestamp time.Time
	Error     error
}

// Config holds configuration for the poller.
type Config struct {
	MotorID  int
	Interval time.Duration
}

// Poller reads the selected motor on every tick.
type Poller struct {
	reader   Reader
	interval time.Duration

	mu       sync.RWMutex
	motorID  int
	running  bool
	sampleCh chan Sample
	logCh    chan string

	now func() time.Time
}

// NewPoller creates a poller reading from r.
func NewPoller(r Reader, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		reader:   r,
		interval: cfg.Interval,
		motorID:  cfg.MotorID,
		sampleCh: make(chan Sample, 1),
		logCh:    make(chan string, 10),
		now:      time.Now,
	}
}

// Samples returns a channel that receives the latest sample. Unread samples
// are replaced by newer ones.
func (p *Poller) Samples() <-chan Sample {
	return p.sampleCh
}

// Logs returns a channel that receives log messages.
func (p *Poller) Logs() <-chan string {
	return p.logCh
}

// Interval returns the polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// SetMotor switches polling to id from the next tick on.
func (p *Poller) SetMotor(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.motorID != id {
		p.motorID = id
		p.log("Polling motor %d", id)
	}
}

// Motor returns the motor being polled.
func (p *Poller) Motor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.motorID
}

// Running reports whether Start is looping.
func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", p.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case p.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start polls until ctx is done and returns ctx.Err().
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("already running")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.log("Polling motor %d every %s", p.Motor(), p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			p.log("Polling stopped")
			return ctx.Err()
		case <-ticker.C:
			lastErr = p.step(ctx, lastErr)
		}
	}
}

// step reads one sample. A failure is logged only when it differs from the
// previous one so a missing motor does not flood the log.
func (p *Poller) step(ctx context.Context, lastErr error) error {
	id := p.Motor()
	st, err := p.reader.ReadStatus(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return lastErr
		}
		if lastErr == nil || lastErr.Error() != err.Error() {
			p.log("Read error: %v", err)
		}
		p.sendSample(Sample{ID: id, Timestamp: p.now(), Error: err})
		return err
	}
	if lastErr != nil && !errors.Is(lastErr, context.Canceled) {
		p.log("Motor %d responding again", id)
	}
	p.sendSample(Sample{ID: id, Status: st, Timestamp: p.now()})
	return nil
}

func (p *Poller) sendSample(s Sample) {
	select {
	case p.sampleCh <- s:
	default:
		// Drop old sample if channel full, replace with new
		select {
		case <-p.sampleCh:
		default:
		}
		p.sampleCh <- s
	}
}

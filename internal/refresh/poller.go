package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Poller runs continuous polling.
type Poller struct {
	refresher *Refresher
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewPoller creates a background poller refreshing every interval.
func NewPoller(refresher *Refresher, interval time.Duration) *Poller {
	return &Poller{
		refresher: refresher,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the polling loop. A non-positive interval disables polling.
func (p *Poller) Start() {
	if p.interval <= 0 {
		log.Info("Poller: disabled")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			log.WithField("interval", p.interval).Debug("Poller: refreshing feeds")
			_, err := p.refresher.Refresh(context.Background())
			switch {
			case errors.Is(err, ErrBusy):
				log.Debug("Poller: refresh already running, skipping cycle")
			case err != nil:
				log.WithError(err).Error("Poller: refresh failed")
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop stops the poller gracefully, waiting for a running cycle to finish.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

package helpers

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// Interrupts records SIGINT and SIGTERM so long operations can stop at a safe point
type Interrupts struct {
	signals     chan os.Signal
	done        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
	interrupted atomic.Bool
}

// WatchInterrupts starts listening until Stop is called
func WatchInterrupts(logger *zap.SugaredLogger) *Interrupts {
	i := &Interrupts{
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	signal.Notify(i.signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(i.stopped)
		select {
		case <-i.signals:
			logger.Warn("Interrupted, stopping at the next safe point")
			i.interrupted.Store(true)
		case <-i.done:
		}
	}()
	return i
}

func (i *Interrupts) Interrupted() bool {
	return i.interrupted.Load()
}

// Stop releases the signals and waits for the watcher to exit
func (i *Interrupts) Stop() {
	i.stopOnce.Do(func() {
		signal.Stop(i.signals)
		close(i.done)
	})
	<-i.stopped
}

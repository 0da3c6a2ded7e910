package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

type progressFunc func(done time.Duration)

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// startDurationProgress shows how many seconds of total have been handled.
// The caller reports progress; nothing ticks on its own.
func startDurationProgress(enabled bool, description string, total time.Duration) (progressFunc, stopFunc) {
	if !enabled || total <= 0 {
		return func(time.Duration) {}, func() {}
	}

	seconds := int64((total + time.Second - 1) / time.Second)
	bar := progressbar.NewOptions64(
		seconds,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	var (
		mu       sync.Mutex
		finished bool
	)
	update := func(done time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		_ = bar.Set64(min(int64(done/time.Second), seconds))
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			mu.Lock()
			defer mu.Unlock()
			finished = true
			_ = bar.Finish()
		})
	}
	return update, stop
}

package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for steps that happen before the
// chat view starts.
type Spinner struct {
	out      io.Writer
	frames   []string
	interval time.Duration

	mu      sync.Mutex
	message string
	started bool
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSpinner(s spinner.Spinner, message string) *Spinner {
	return &Spinner{
		out:      os.Stderr,
		frames:   s.Frames,
		interval: s.FPS,
		message:  message,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// NewConnectionSpinner is for network operations (Globe style).
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(spinner.Globe, message)
}

// NewWaitingSpinner is for waiting on the server or other peers (Points style).
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(spinner.Points, message)
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.stopped
		}
		fmt.Fprint(s.out, "\r\033[K")
	})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}

func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

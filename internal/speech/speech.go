// Package speech abstracts text-to-speech playback. Every Speaker keeps at most one
// active utterance: starting a new one cancels the previous.
package speech

import (
	"context"
	"math"
	"os/exec"
	"strconv"
	"sync"

	util "github.com/CodeAndHammer/lockcards/internal/util"
)

type Utterance struct {
	Text string  `json:"text"`
	Lang string  `json:"lang"`
	Rate float64 `json:"rate"`
}

type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// Relay hands utterances to the browser, which plays them with the Web Speech API.
// Only the most recent pending utterance is kept.
type Relay struct {
	mu      sync.Mutex
	pending *Utterance
}

func NewRelay() *Relay {
	return &Relay{}
}

func (r *Relay) Speak(ctx context.Context, u Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		util.LogInfoCtx(ctx, "Cancelling pending utterance %q", r.pending.Text)
	}
	r.pending = &u
	return nil
}

// Take returns and clears the pending utterance.
func (r *Relay) Take() (Utterance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Utterance{}, false
	}
	u := *r.pending
	r.pending = nil
	return u, true
}

// Command speaks through a local TTS binary such as espeak-ng.
type Command struct {
	Name string
	// Args builds the argument list; defaults to espeak-ng style flags.
	Args func(u Utterance) []string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCommand(name string) *Command {
	return &Command{Name: name, Args: espeakArgs}
}

func (c *Command) Speak(ctx context.Context, u Utterance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	args := espeakArgs
	if c.Args != nil {
		args = c.Args
	}
	cmd := exec.CommandContext(runCtx, c.Name, args(u)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && runCtx.Err() == nil {
			util.LogWarn("TTS command %s failed: %v", c.Name, err)
		}
		cancel()
	}()
	return nil
}

// Stop cancels the in-flight utterance, if any, and waits for it to exit.
func (c *Command) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Command) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func espeakArgs(u Utterance) []string {
	args := []string{}
	if u.Lang != "" {
		args = append(args, "-v", u.Lang)
	}
	if u.Rate > 0 {
		// espeak's default is 175 words per minute at rate 1.0
		args = append(args, "-s", strconv.Itoa(int(math.Round(175*u.Rate))))
	}
	return append(args, u.Text)
}

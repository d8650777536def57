package led

import "sync"

// Blinker toggles an Indicator and remembers its state.
//
// The LED starts off. A failed write leaves the remembered state unchanged,
// so the next toggle retries the same transition.
type Blinker struct {
	ind Indicator

	mu      sync.Mutex
	on      bool
	toggles uint64
}

// NewBlinker wraps ind.
func NewBlinker(ind Indicator) *Blinker {
	return &Blinker{ind: ind}
}

// Toggle flips the indicator.
func (b *Blinker) Toggle() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := !b.on
	if err := b.ind.Set(next); err != nil {
		return err
	}
	b.on = next
	b.toggles++
	return nil
}

// Off turns the indicator off.
func (b *Blinker) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ind.Set(false); err != nil {
		return err
	}
	b.on = false
	return nil
}

// On reports the last state written.
func (b *Blinker) On() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// Toggles reports how many successful toggles happened.
func (b *Blinker) Toggles() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toggles
}

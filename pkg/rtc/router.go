package rtc

import (
	"iter"
	"time"

	"socket-rtc/pkg/envelope"
	"socket-rtc/pkg/log"

	"github.com/pkg/errors"
)

// Router addresses application events to the Connected peers of a
// Registry. Delivery is best effort: targets that are absent or not
// Connected are skipped, and a failed target does not stop the others.
type Router struct {
	registry *Registry

	// timeout bounds each target's send; zero leaves sends unbounded.
	timeout time.Duration
}

func NewRouter(registry *Registry, timeout time.Duration) *Router {
	return &Router{
		registry: registry,
		timeout:  timeout,
	}
}

// Report counts the outcome of one fan-out.
type Report struct {
	Sent    int
	Skipped int
	Failed  int
}

// Sender is bound to a target set that is resolved on every send.
type Sender struct {
	router  *Router
	targets func() iter.Seq[*Handle]
}

// Broadcast sends to every Connected peer. The returned error only reports
// an event that could not be encoded.
func (r *Router) Broadcast(event string, args ...any) error {
	return r.all().Send(event, args...)
}

// To returns a sender for the given identities.
func (r *Router) To(ids ...string) *Sender {
	return &Sender{
		router: r,
		targets: func() iter.Seq[*Handle] {
			return func(yield func(*Handle) bool) {
				for _, id := range ids {
					h, _ := r.registry.Get(id)

					if !yield(h) {
						return
					}
				}
			}
		},
	}
}

// Except returns a sender for every Connected peer but id.
func (r *Router) Except(id string) *Sender {
	return &Sender{
		router: r,
		targets: func() iter.Seq[*Handle] {
			return func(yield func(*Handle) bool) {
				for h := range r.registry.AllConnected() {
					if h.ID() == id {
						continue
					}

					if !yield(h) {
						return
					}
				}
			}
		},
	}
}

func (r *Router) all() *Sender {
	return &Sender{
		router:  r,
		targets: r.registry.AllConnected,
	}
}

func (s *Sender) Send(event string, args ...any) error {
	_, err := s.Deliver(event, args...)

	return err
}

// Deliver sends like Send and reports what happened to each target. A nil
// target in the set stands for an identity that is not registered.
func (s *Sender) Deliver(event string, args ...any) (Report, error) {
	var report Report

	env, err := envelope.New(event, args...)
	if err != nil {
		return report, err
	}

	data, err := env.Encode()
	if err != nil {
		return report, err
	}

	for h := range s.targets() {
		if h == nil || h.State() != Connected {
			report.Skipped++

			continue
		}

		err := s.router.send(h, data)

		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, ErrNotConnected):
			report.Skipped++
		default:
			report.Failed++

			log.WithPeer(h.ID()).Warnf("%s", &SendError{ID: h.ID(), Err: err})
		}
	}

	return report, nil
}

func (r *Router) send(h *Handle, data []byte) error {
	if r.timeout <= 0 {
		return h.send(data)
	}

	result := make(chan error, 1)

	go func() {
		result <- h.send(data)
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return ErrSendTimeout
	}
}

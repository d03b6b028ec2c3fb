package slotclient

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// releaseTimeout bounds a release that outlives the controller's context.
const releaseTimeout = 5 * time.Second

// API is the server surface the controller talks to.
type API interface {
	Acquire(ctx context.Context, spaceID int64, date string, first, last int) error
	Release(ctx context.Context, spaceID int64, date string, first, last int) error
	Book(ctx context.Context, spaceID int64, startAt, endAt time.Time) (string, error)
	// Subscribe streams updates for the space-day, starting with a
	// snapshot. The channel is closed when the stream ends.
	Subscribe(ctx context.Context, spaceID int64, date string) (<-chan ServerUpdate, error)
}

// Controller serializes every action through Reduce on a single goroutine
// and runs the resulting effects asynchronously; their outcomes come back
// as actions.
type Controller struct {
	api     API
	spaceID int64
	date    string
	actions chan Action
	log     zerolog.Logger

	onChange   func(State)
	newBackOff func() backoff.BackOff

	mu    sync.RWMutex
	state State
	wg    sync.WaitGroup
}

type ControllerOption func(*Controller)

func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// WithOnChange registers a callback run on the controller goroutine after
// every state change.
func WithOnChange(fn func(State)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// WithReconnectBackOff sets the policy for resubscribing after the update
// stream drops.
func WithReconnectBackOff(fn func() backoff.BackOff) ControllerOption {
	return func(c *Controller) { c.newBackOff = fn }
}

func NewController(api API, spaceID int64, date string, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:        api,
		spaceID:    spaceID,
		date:       date,
		actions:    make(chan Action, 64),
		log:        zerolog.Nop(),
		state:      NewState(spaceID, date),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Dispatch queues a for the controller goroutine.
func (c *Controller) Dispatch(ctx context.Context, a Action) error {
	select {
	case c.actions <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes actions until ctx is done, following the server's update
// stream and resubscribing when it drops. Actions already queued when ctx
// ends are still reduced, so a final Abandon releases its holds.
func (c *Controller) Run(ctx context.Context) error {
	c.wg.Add(1)
	go c.follow(ctx)

	for {
		select {
		case <-ctx.Done():
			c.drain(ctx)
			c.wg.Wait()
			return ctx.Err()
		case a := <-c.actions:
			c.apply(ctx, a)
		}
	}
}

func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case a := <-c.actions:
			c.apply(ctx, a)
		default:
			return
		}
	}
}

func (c *Controller) apply(ctx context.Context, a Action) {
	c.mu.Lock()
	next, effects := Reduce(c.state, a)
	c.state = next
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(next.clone())
	}
	for _, eff := range effects {
		c.wg.Add(1)
		go c.perform(ctx, eff)
	}
}

func (c *Controller) perform(ctx context.Context, eff Effect) {
	defer c.wg.Done()
	if _, ok := eff.(ReleaseEffect); !ok && ctx.Err() != nil {
		return
	}

	switch e := eff.(type) {
	case AcquireEffect:
		if err := c.api.Acquire(ctx, e.SpaceID, e.Date, e.First, e.Last); err != nil {
			_ = c.Dispatch(ctx, AcquireFailed{First: e.First, Last: e.Last, Err: err})
			return
		}
		_ = c.Dispatch(ctx, AcquireSucceeded{First: e.First, Last: e.Last})

	case ReleaseEffect:
		// Releases run even after shutdown so held slots free up before their TTL.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		for _, run := range runs(e.Slots) {
			if err := c.api.Release(rctx, e.SpaceID, e.Date, run[0], run[1]); err != nil {
				// the hold still expires on its own
				c.log.Warn().Err(err).Int("first", run[0]).Int("last", run[1]).Msg("release slots")
			}
		}

	case BookEffect:
		id, err := c.api.Book(ctx, e.SpaceID, e.StartAt, e.EndAt)
		if err != nil {
			_ = c.Dispatch(ctx, BookingFailed{Err: err})
			return
		}
		_ = c.Dispatch(ctx, BookingSucceeded{ReservationID: id})
	}
}

func (c *Controller) follow(ctx context.Context) {
	defer c.wg.Done()

	spaceID, date := c.spaceID, c.date
	for {
		var updates <-chan ServerUpdate
		err := backoff.RetryNotify(func() error {
			var err error
			updates, err = c.api.Subscribe(ctx, spaceID, date)
			return err
		}, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
			c.log.Warn().Err(err).Dur("retry_in", wait).Msg("subscribe to slot updates")
		})
		if err != nil {
			return
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					break stream
				}
				if c.Dispatch(ctx, u) != nil {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.log.Info().Int64("space_id", spaceID).Str("date", date).Msg("slot update stream closed, resubscribing")
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// runs splits sorted slot indexes into contiguous [first, last] pairs.
func runs(slots []int) [][2]int {
	var out [][2]int
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1][1]+1 == s {
			out[n-1][1] = s
			continue
		}
		out = append(out, [2]int{s, s})
	}
	return out
}

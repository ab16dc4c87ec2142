package conformance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// Result is how one scenario ended.
type Result struct {
	Scenario string
	Outcome  Outcome
	Err      error
	Trail    Trail
	Started  time.Time
	Elapsed  time.Duration
}

// Violation returns the violation that failed the scenario, if any.
func (r Result) Violation() *Violation {
	var v *Violation
	if errors.As(r.Err, &v) {
		return v
	}
	return nil
}

// Runner runs scenarios, each on its own session.
type Runner struct {
	Config *Config
	Dial   DialFunc
	Log    imap.Logger
}

// NewRunner returns a runner dialing the configured server.
func NewRunner(cfg *Config, logger imap.Logger) *Runner {
	if logger == nil {
		logger = imap.DefaultLogger()
	}
	return &Runner{Config: cfg, Dial: Dialer(cfg, logger), Log: logger}
}

// Run runs scenarios with up to Config.Parallel of them at once. Results
// come back in the order of scenarios. Cancelling ctx aborts the scenarios
// in flight and skips the rest.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) []Result {
	parallel := max(r.Config.Parallel, 1)
	results := make([]Result, len(scenarios))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, sc := range scenarios {
		skipped := Result{Scenario: sc.Name, Outcome: Infrastructure}
		if skipped.Err = ctx.Err(); skipped.Err != nil {
			results[i] = skipped
			continue
		}
		select {
		case <-ctx.Done():
			skipped.Err = ctx.Err()
			results[i] = skipped
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, sc Scenario) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.RunOne(ctx, sc)
		}(i, sc)
	}
	wg.Wait()
	return results
}

// RunOne runs a single scenario on a fresh session. The session is logged
// out on every path.
func (r *Runner) RunOne(ctx context.Context, sc Scenario) (res Result) {
	res = Result{Scenario: sc.Name, Started: time.Now()}
	log := r.Log.WithAttrs("scenario", sc.Name)

	timeout, err := r.Config.GetScenarioTimeout()
	if err != nil {
		res.Outcome, res.Err = Error, err
		return res
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		res.Elapsed = time.Since(res.Started)
		res.Outcome = Classify(res.Err)
		attrs := []any{"outcome", res.Outcome.String(), "elapsed", res.Elapsed.Round(time.Millisecond)}
		if res.Err != nil {
			attrs = append(attrs, "error", res.Err)
		}
		log.Info("scenario finished", attrs...)
	}()

	log.Info("scenario started")
	s, err := r.Dial(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	env := &Env{
		Session: s,
		Config:  r.Config,
		Log:     log,
		ctx:     ctx,
		name:    sc.Name,
		id:      strings.ToLower(xid.New().String()),
		dial:    r.Dial,
	}
	defer func() {
		env.cleanup()
		res.Trail = env.trail
	}()

	// a stuck command returns as soon as the scenario is cancelled
	stop := context.AfterFunc(ctx, s.Interrupt)
	defer stop()

	_ = env.Enter(Connected)
	if !sc.NoLogin {
		if err = env.Enter(Authenticated); err == nil {
			err = login(s, env.Account())
		}
		if err != nil {
			res.Err = err
			return res
		}
	}

	res.Err = run(sc, env)
	if res.Err != nil && ctx.Err() != nil && Classify(res.Err) != Fail {
		res.Err = fmt.Errorf("%w: %w", ctx.Err(), res.Err)
	}
	return res
}

// run calls the scenario, turning a panic into an error.
func run(sc Scenario, env *Env) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario %s panicked: %v", sc.Name, p)
		}
	}()
	return sc.Run(env)
}

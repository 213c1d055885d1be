package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/trialstream/internal/errors"
	"github.com/vango-dev/trialstream/pkg/client"
	"github.com/vango-dev/trialstream/pkg/ndarray"
	"github.com/vango-dev/trialstream/pkg/protocol"
)

// step is one control event of the replayed task, followed by a pause.
type step struct {
	Name    string
	Payload map[string]any
	Pause   time.Duration
}

// traceShape is the shape of the cursor trace sent after each decision.
var traceShape = []int{50, 2}

// taskTimeline builds the event sequence of one decision-making trial:
// preparation, offer, decision, then the inter-trial interval.
func taskTimeline(trial int, rng *rand.Rand) []step {
	prep := 1 + rng.Float64()*0.4
	const (
		dmPhase  = 4.0
		feedback = 1.0
		iti      = 2.0
	)
	return []step{
		{"PrepDM", map[string]any{"trial": trial, "dur_PrepDM": prep}, seconds(prep)},
		{"StartDM", map[string]any{"trial": trial, "dur_DMphase": dmPhase, "Effort": 4, "Reward": 1}, 2 * time.Second},
		{"DecisionMade", map[string]any{"trial": trial, "choice": rng.IntN(2), "dur_Feedback": feedback}, seconds(feedback)},
		{"ITI", map[string]any{"trial": trial, "DurITI": iti}, seconds(iti)},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// cursorTrace is a random walk with the shape of a recorded cursor path.
func cursorTrace(rng *rand.Rand) (*ndarray.Array, error) {
	n := traceShape[0] * traceShape[1]
	values := make([]float32, n)
	var x, y float32
	for i := 0; i < n; i += 2 {
		x += float32(rng.NormFloat64())
		y += float32(rng.NormFloat64())
		values[i], values[i+1] = x, y
	}
	return ndarray.FromSlice(traceShape, values)
}

type sendOptions struct {
	url    string
	trials int
	arrays bool
	fast   bool
	seed   uint64
	wait   time.Duration
}

func sendCmd() *cobra.Command {
	opts := sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Replay the task timeline against a server",
		Long: `Connect to a trialstream server and replay the decision-making task:
PrepDM, StartDM, DecisionMade and ITI for every trial, optionally followed
by a 50x2 float32 cursor_trace array.

Examples:
  trialstream send --trials 3
  trialstream send --url ws://rig-3:8765/trials --arrays --fast`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.trials <= 0 {
				return errors.New(errors.CodeInvalidFlag).
					WithDetail(fmt.Sprintf("--trials must be positive, got %d.", opts.trials))
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runSend(ctx, opts, slog.Default())
		},
	}

	cmd.Flags().StringVarP(&opts.url, "url", "u", "ws://127.0.0.1:8765/trials", "Server WebSocket URL")
	cmd.Flags().IntVarP(&opts.trials, "trials", "n", 1, "Number of trials to replay")
	cmd.Flags().BoolVar(&opts.arrays, "arrays", false, "Send a cursor_trace array per trial")
	cmd.Flags().BoolVar(&opts.fast, "fast", false, "Skip the pauses between events")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (0 picks one)")
	cmd.Flags().DurationVar(&opts.wait, "settle", 200*time.Millisecond, "Time to wait for replies before closing")

	return cmd
}

// sendResult summarizes a replay.
type sendResult struct {
	Events int
	Arrays int
	Acks   int64
	Errors int64
	Stats  client.Stats
}

func runSend(ctx context.Context, opts sendOptions, logger *slog.Logger) error {
	res, err := replay(ctx, opts, logger)
	if err != nil {
		return err
	}
	info("sent %d events and %d arrays", res.Events, res.Arrays)
	info("replies: %d acks, %d errors, %d dropped sends", res.Acks, res.Errors, res.Stats.Dropped)
	if res.Errors > 0 {
		return errors.Newf(errors.CategoryTransport, "server rejected %d frames", res.Errors)
	}
	return nil
}

func replay(ctx context.Context, opts sendOptions, logger *slog.Logger) (*sendResult, error) {
	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	streamer := client.New(opts.url,
		client.WithLogger(logger),
		client.WithReplyHandler(func(r *protocol.Reply) {
			if r.IsError() {
				logger.Warn("server error reply", "reason", r.Reason, "missing", r.Missing)
			}
		}),
	)
	if err := streamer.Start(ctx); err != nil {
		return nil, errors.New(errors.CodeDial).
			WithSuggestion("Start the server with 'trialstream serve' or check --url").
			Wrap(err)
	}

	res := &sendResult{}
	for trial := 1; trial <= opts.trials; trial++ {
		for _, st := range taskTimeline(trial, rng) {
			streamer.SendEvent(st.Name, st.Payload)
			res.Events++
			logger.Debug("event sent", "event", st.Name, "trial", trial)

			if st.Name == "DecisionMade" && opts.arrays {
				trace, err := cursorTrace(rng)
				if err != nil {
					streamer.Close()
					return nil, err
				}
				streamer.SendArray("cursor_trace", trace, trial, map[string]any{"units": "px"})
				res.Arrays++
			}
			if !opts.fast {
				if err := pause(ctx, st.Pause); err != nil {
					streamer.Close()
					return nil, err
				}
			}
		}
	}

	if opts.wait > 0 {
		_ = pause(ctx, opts.wait)
	}
	if err := streamer.Close(); err != nil {
		logger.Warn("close did not complete cleanly", "error", err)
	}
	res.Stats = streamer.Stats()
	res.Acks = res.Stats.Acks
	res.Errors = res.Stats.Errors
	return res, nil
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

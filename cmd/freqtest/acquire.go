package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/app"
	"github.com/chrissnell/freqtest/internal/log"
	"github.com/chrissnell/freqtest/internal/sinks/logsink"
	"github.com/chrissnell/freqtest/internal/transport"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/spf13/cobra"
)

// NewReadCmd creates the read command.
func NewReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Take single readings and print statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			count, _ := cmd.Flags().GetInt("count")
			return runRead(cmd.Context(), cmd.OutOrStdout(), cfg, nil, count)
		},
	}

	cmd.Flags().IntP("count", "n", 1, "Number of readings to take")

	return cmd
}

// NewTimedCmd creates the timed command.
func NewTimedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timed [seconds]",
		Short: "Sample the counter for a fixed duration",
		Long: `Sample the counter once per sample interval until the duration elapses,
then print the drift statistics of the run. Interrupt to stop early.
Without an argument the configured test duration is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)

			return runTimed(cmd.Context(), cmd.OutOrStdout(), cfg, nil, raw, sigs)
		},
	}
}

// openSession connects a new session to the configured port. Status events
// produced while connecting are printed.
func openSession(ctx context.Context, out io.Writer, cfg *config.ConfigData, openPort transport.OpenFunc) (*app.Session, error) {
	session, err := app.NewSession(ctx, cfg, openPort, log.GetSugaredLogger())
	if err != nil {
		return nil, err
	}

	err = session.Controller.Connect(cfg.Instrument.Port)
	printPending(out, session.Controller.Events())
	if err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func runRead(ctx context.Context, out io.Writer, cfg *config.ConfigData, openPort transport.OpenFunc, count int) error {
	ctx, cancel := context.WithCancel(ctx)

	session, err := openSession(ctx, out, cfg, openPort)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		session.Close()
	}()

	ctrl := session.Controller
	for i := 0; i < count; i++ {
		if err := ctrl.SingleRead(); err != nil {
			return err
		}
		if _, err := printUntil(ctx, out, ctrl.Events(), nil, nil, func(ev acquisition.Event) bool {
			switch ev.(type) {
			case acquisition.Reading, acquisition.NoReading:
				return true
			}
			return false
		}); err != nil {
			return err
		}
		ctrl.Wait()
	}

	fmt.Fprintln(out, logsink.DescribeSummary(ctrl.Statistics()))
	return nil
}

func runTimed(ctx context.Context, out io.Writer, cfg *config.ConfigData, openPort transport.OpenFunc, raw string, interrupt <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)

	session, err := openSession(ctx, out, cfg, openPort)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		session.Close()
	}()

	ctrl := session.Controller
	if raw == "" {
		_, err = ctrl.StartTimedTest(cfg.Test.Duration.Seconds())
	} else {
		_, err = ctrl.StartTimedTestInput(raw)
	}
	if err != nil {
		return err
	}

	_, err = printUntil(ctx, out, ctrl.Events(), interrupt, ctrl.CancelTimedTest, func(ev acquisition.Event) bool {
		_, ok := ev.(acquisition.Finished)
		return ok
	})
	if err != nil {
		return err
	}

	ctrl.Wait()
	return nil
}

// printUntil prints events until stop returns true for one of them. The
// first value on interrupt calls onInterrupt and printing carries on.
func printUntil(ctx context.Context, out io.Writer, events <-chan acquisition.Event, interrupt <-chan os.Signal, onInterrupt func(), stop func(acquisition.Event) bool) (acquisition.Event, error) {
	for {
		select {
		case ev := <-events:
			fmt.Fprintln(out, logsink.Describe(ev))
			if stop(ev) {
				return ev, nil
			}
		case <-interrupt:
			onInterrupt()
			interrupt = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func printPending(out io.Writer, events <-chan acquisition.Event) {
	for {
		select {
		case ev := <-events:
			fmt.Fprintln(out, logsink.Describe(ev))
		default:
			return
		}
	}
}

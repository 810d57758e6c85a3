package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/tcmartin/dagrunner/pkg/logging"
)

// parseSchedule accepts a 6-field spec with seconds, falling back to the
// standard 5-field form and descriptors
func parseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(spec)
	if err == nil {
		return schedule, nil
	}
	schedule, err = cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// runScheduled starts a run on every tick until ctx ends. A tick that fires
// while the previous run is still going is skipped.
func runScheduled(ctx context.Context, app *App, spec string, initial map[string]interface{}, out io.Writer) error {
	schedule, err := parseSchedule(spec)
	if err != nil {
		return err
	}

	logger := cronLogger{logger: app.Logger}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	var outMu sync.Mutex
	scheduler.Schedule(schedule, cron.FuncJob(func() {
		state, err := app.Run(ctx, initial)
		if err != nil {
			app.Logger.Error("scheduled run failed to start", logging.Err(err))
			return
		}

		outMu.Lock()
		defer outMu.Unlock()
		if err := writeState(out, state); err != nil {
			app.Logger.Error("failed to write state", logging.Err(err))
		}
	}))

	app.Logger.LogSystemEvent("schedule_started", map[string]interface{}{"spec": spec})
	scheduler.Start()

	<-ctx.Done()
	<-scheduler.Stop().Done()
	app.Logger.LogSystemEvent("schedule_stopped", map[string]interface{}{"spec": spec})
	return nil
}

// cronLogger adapts logging.Logger to cron.Logger
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(pairs(keysAndValues), logging.Err(err))...)
}

func pairs(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}

// Copyright (C) 2017 Librato, Inc. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/otagent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/otelagent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/prommetrics"
	basictracer "github.com/opentracing/basictracer-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Agents selectable with --agent
const (
	agentNone        = "none"
	agentOtel        = "otel"
	agentOpenTracing = "opentracing"
)

type rootOptions struct {
	Agent       string
	LogLevel    string
	ServiceName string
	Timeout     time.Duration
}

var defaultRootOptions = rootOptions{
	Agent:       agentOtel,
	LogLevel:    "info",
	ServiceName: "sdk-sample",
	Timeout:     30 * time.Second,
}

// environment is what the samples run against: one SDK handle built at
// startup, and the sinks it reports to.
type environment struct {
	sdk      sdk.SDK
	log      *logrus.Logger
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

func newLogger(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// loggingCallback routes the usage warnings of the SDK into logger.
func loggingCallback(logger *logrus.Logger) sdk.LoggingCallback {
	entry := logger.WithField("component", "sdk")
	return sdk.LoggingCallbackFuncs{
		WarnFunc:  func(msg string) { entry.Warn(msg) },
		ErrorFunc: func(msg string) { entry.Error(msg) },
	}
}

func newEnvironment(opts rootOptions, logger *logrus.Logger) (*environment, error) {
	env := &environment{
		log:      logger,
		registry: prometheus.NewRegistry(),
		shutdown: func(context.Context) error { return nil },
	}
	sdkOpts := []sdk.Option{
		sdk.WithLoggingCallback(loggingCallback(logger)),
		sdk.WithMetricRecorder(prommetrics.New(env.registry, prommetrics.WithNamespace("sample"))),
		sdk.WithServiceName(opts.ServiceName),
	}

	switch opts.Agent {
	case agentNone:
	case agentOtel:
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(newLogExporter(logger)))
		env.shutdown = tp.Shutdown
		sdkOpts = append(sdkOpts, sdk.WithAgent(otelagent.New(tp)))
	case agentOpenTracing:
		tracer := basictracer.New(newLogRecorder(logger))
		sdkOpts = append(sdkOpts, sdk.WithAgent(otagent.New(tracer)))
	default:
		return nil, errors.Errorf("unknown agent %q, want one of %s, %s, %s",
			opts.Agent, agentNone, agentOtel, agentOpenTracing)
	}

	env.sdk = sdk.New(sdkOpts...)
	info := env.sdk.AgentInfo()
	logger.WithFields(logrus.Fields{
		"agent":      opts.Agent,
		"found":      info.AgentFound,
		"compatible": info.AgentCompatible,
		"version":    info.Version,
		"state":      env.sdk.CurrentState(),
	}).Info("SDK ready")
	return env, nil
}

// logMetrics logs every metric the samples recorded.
func (env *environment) logMetrics() error {
	families, err := env.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			fields := logrus.Fields{"metric": family.GetName(), "type": family.GetType().String()}
			for _, l := range m.GetLabel() {
				fields[l.GetName()] = l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				fields["value"] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				fields["value"] = m.GetGauge().GetValue()
			case m.GetSummary() != nil:
				fields["count"] = m.GetSummary().GetSampleCount()
				fields["sum"] = m.GetSummary().GetSampleSum()
			}
			env.log.WithFields(fields).Info("metric")
		}
	}
	return nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := defaultRootOptions

	rootCmd := &cobra.Command{
		Use:           "sdk-sample",
		Short:         "Run the SDK usage samples",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Agent, "agent", opts.Agent, "Agent to report to: none, otel, opentracing")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&opts.ServiceName, "service-name", opts.ServiceName, "Service name reported by the agent")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for running all samples")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the samples",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sampleNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", name, samples[name].description)
			}
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run [sample...]",
		Short: "Run the named samples, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.OutOrStdout(), opts.LogLevel)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				args = sampleNames()
			}
			for _, name := range args {
				if _, ok := samples[name]; !ok {
					return errors.Errorf("unknown sample %q", name)
				}
			}

			env, err := newEnvironment(opts, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			runErr := runSamples(ctx, env, args)
			if err := env.logMetrics(); err != nil {
				logger.WithError(err).Warn("cannot log metrics")
			}
			if err := env.shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("agent shutdown failed")
			}
			return runErr
		},
	})

	return rootCmd
}

// runSamples runs the samples in order. A failing sample is logged and does
// not stop the others.
func runSamples(ctx context.Context, env *environment, names []string) error {
	failed := 0
	for _, name := range names {
		entry := env.log.WithField("sample", name)
		entry.Info("running")
		start := time.Now()
		if err := samples[name].run(ctx, env.sdk); err != nil {
			failed++
			entry.WithError(err).Error("failed")
			continue
		}
		entry.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("done")
	}
	if failed > 0 {
		return errors.Errorf("%d of %d samples failed", failed, len(names))
	}
	return nil
}

func sampleNames() []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

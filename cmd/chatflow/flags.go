package main

import (
	"time"

	"github.com/dukex/chatflow/pkg/janitor"
	"github.com/dukex/chatflow/pkg/nodes/question"
	cli "github.com/urfave/cli/v3"
)

func eventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "channel-api-url",
			Usage:   "Base URL of the messaging platform API; messages are printed when empty",
			Sources: cli.EnvVars("CHANNEL_API_URL"),
		},
		&cli.StringFlag{
			Name:    "channel-api-token",
			Usage:   "Bearer token for the messaging platform API",
			Sources: cli.EnvVars("CHANNEL_API_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "generator-url",
			Usage:   "Base URL of an OpenAI compatible API",
			Sources: cli.EnvVars("GENERATOR_URL"),
		},
		&cli.StringFlag{
			Name:    "generator-api-key",
			Usage:   "API key of the generator; generated replies are disabled when empty",
			Sources: cli.EnvVars("GENERATOR_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "generator-model",
			Usage:   "Model used for generated replies",
			Value:   "gpt-4o-mini",
			Sources: cli.EnvVars("GENERATOR_MODEL"),
		},
		&cli.BoolFlag{
			Name:    "fallback",
			Usage:   "Answer contacts that match no workflow with the assistant",
			Sources: cli.EnvVars("FALLBACK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "fallback-prompt",
			Usage:   "System prompt of the fallback assistant",
			Sources: cli.EnvVars("FALLBACK_PROMPT"),
		},
		&cli.IntFlag{
			Name:    "label-limit",
			Usage:   "Maximum length of interactive choice titles",
			Value:   question.DefaultLabelLimit,
			Sources: cli.EnvVars("LABEL_LIMIT"),
		},
		&cli.BoolFlag{
			Name:    "strict-handles",
			Usage:   "End the workflow when a handle has no matching edge instead of following the first edge",
			Sources: cli.EnvVars("STRICT_HANDLES"),
		},
		&cli.DurationFlag{
			Name:    "send-timeout",
			Usage:   "Maximum time to deliver one outbound message",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("SEND_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces (configured by OTEL_EXPORTER_OTLP_*)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "janitor-schedule",
			Usage:   "Cron schedule pruning the committed action ledger",
			Value:   janitor.DefaultSchedule,
			Sources: cli.EnvVars("JANITOR_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "janitor-retention",
			Usage:   "How long committed actions are kept",
			Value:   janitor.DefaultRetention,
			Sources: cli.EnvVars("JANITOR_RETENTION"),
		},
	}
}

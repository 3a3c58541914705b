package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// fallback payloads for a demo run of the produce command with no args
var demoMessages = []string{
	"Hello world from AWS SQS",
	"This message will be encrypted",
	"SQS is serverless and scalable",
	"Cloud-native architecture",
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "queue-name",
			Usage:   "Logical SQS queue name",
			Value:   "message-queue",
			EnvVars: []string{"SQS_QUEUE_NAME"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region",
			Value:   "us-east-1",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "sqs-cipher",
		Usage: "Produce messages onto AWS SQS and consume them through a caesar cipher worker",
		Commands: []*cli.Command{
			{
				Name:      "produce",
				Usage:     "Send messages to the queue, creating it on first use",
				ArgsUsage: "[message ...]",
				Flags: append(commonFlags(),
					&cli.BoolFlag{
						Name:  "batch",
						Usage: "Send all messages in one batch call instead of individually",
					},
				),
				Action: runProduce,
			},
			{
				Name:  "work",
				Usage: "Consume messages, apply the cipher and acknowledge them",
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:    "shift",
						Usage:   "Caesar cipher shift applied to message payloads",
						Value:   3,
						EnvVars: []string{"CIPHER_SHIFT"},
					},
					&cli.IntFlag{
						Name:    "max-messages",
						Usage:   "Stop after this many processed messages (0 = unlimited)",
						Value:   0,
						EnvVars: []string{"MAX_MESSAGES"},
					},
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Stop at the first empty receive instead of polling forever",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel worker instances",
						Value: 1,
					},
					&cli.StringFlag{
						Name:    "poison-policy",
						Usage:   "What to do with unparsable messages (delete, requeue, deadletter)",
						Value:   string(PoisonDelete),
						EnvVars: []string{"POISON_POLICY"},
					},
					&cli.StringFlag{
						Name:    "dlq-db-url",
						Usage:   "Postgres URL for the dead-letter store (deadletter policy only)",
						EnvVars: []string{"DLQ_DATABASE_URL"},
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Usage:   "Demote per-message success logs to debug",
						EnvVars: []string{"QUIET"},
					},
				),
				Action: runWork,
			},
			{
				Name:   "stats",
				Usage:  "Print the queue's approximate message counters",
				Flags:  commonFlags(),
				Action: runStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func setLogLevel(c *cli.Context) {
	switch c.String("log-level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// cancellableContext returns a context cancelled on SIGINT or SIGTERM, which
// is what docker sends on shutdown
func cancellableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	return ctx, cancel
}

func runProduce(c *cli.Context) error {
	setLogLevel(c)

	ctx, cancel := cancellableContext()
	defer cancel()

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.String("region")))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	producer, err := NewProducer(ctx, awsConfig, c.String("queue-name"))
	if err != nil {
		return err
	}

	if attrs, err := producer.Stats(ctx); err == nil {
		log.Info().
			Str("queue", producer.Handle().Name).
			Str("region", producer.Handle().Region).
			Int("available", attrs.Visible).
			Int("in_flight", attrs.InFlight).
			Msg("Queue ready")
	}

	messages := c.Args().Slice()
	if len(messages) == 0 {
		messages = demoMessages
	}

	if c.Bool("batch") {
		result, err := producer.SendBatch(ctx, messages)
		if err != nil {
			return err
		}

		log.Info().
			Int("successful", len(result.Successful)).
			Int("failed", len(result.Failed)).
			Msg("Batch sent")

		for _, entry := range result.Failed {
			log.Warn().
				Int("index", entry.Index).
				Str("code", entry.Code).
				Str("reason", entry.Message).
				Msg("Batch entry failed")
		}
	} else {
		for _, message := range messages {
			messageID, err := producer.Send(ctx, message)
			if err != nil {
				log.Error().Err(err).Str("message", message).Msg("Failed to send message")
				continue
			}
			log.Info().Str("message_id", messageID).Str("message", message).Msg("Message sent")
			time.Sleep(300 * time.Millisecond)
		}
	}

	if attrs, err := producer.Stats(ctx); err == nil {
		log.Info().Int("available", attrs.Visible).Msg("Messages in queue")
	}

	return nil
}

func runWork(c *cli.Context) error {
	setLogLevel(c)

	poisonPolicy, err := ParsePoisonPolicy(c.String("poison-policy"))
	if err != nil {
		return err
	}

	ctx, cancel := cancellableContext()
	defer cancel()

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.String("region")))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	var deadLetters DeadLetterStore = NewInMemoryDeadLetterStore()
	if poisonPolicy == PoisonDeadLetter && c.String("dlq-db-url") != "" {
		deadLetters, err = NewPostgresDeadLetterStore(c.String("dlq-db-url"))
		if err != nil {
			return fmt.Errorf("failed to connect to dead-letter store: %w", err)
		}
	}
	defer deadLetters.Close()

	workerConfig := WorkerConfig{
		QueueName:          c.String("queue-name"),
		Shift:              c.Int("shift"),
		MaxMessages:        c.Int("max-messages"),
		Continuous:         !c.Bool("once"),
		PoisonPolicy:       poisonPolicy,
		ReceiveWaitSeconds: 20,
		Quiet:              c.Bool("quiet"),
	}

	workerCount := c.Int("workers")
	if workerCount <= 1 {
		worker, err := NewWorker(ctx, awsConfig, workerConfig, deadLetters)
		if err != nil {
			return err
		}

		count, err := worker.Run(ctx)
		if err != nil && ctx.Err() == nil {
			return err
		}
		log.Info().Int("processed", count).Msg("Done")
		return nil
	}

	group, err := NewWorkerGroup(ctx, awsConfig, workerConfig, workerCount, deadLetters)
	if err != nil {
		return err
	}

	total := group.Run(ctx)
	log.Info().Int("workers", workerCount).Int("processed", total).Msg("Done")
	return nil
}

func runStats(c *cli.Context) error {
	setLogLevel(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.String("region")))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsConfig)

	handle, err := NewQueueProvisioner(sqsClient, awsConfig.Region).Lookup(ctx, c.String("queue-name"))
	if err != nil {
		return err
	}

	attrs, err := fetchQueueAttributes(ctx, sqsClient, handle.URL)
	if err != nil {
		return err
	}

	log.Info().
		Str("queue", handle.Name).
		Str("url", handle.URL).
		Int("available", attrs.Visible).
		Int("in_flight", attrs.InFlight).
		Int("delayed", attrs.Delayed).
		Msg("Queue stats")

	return nil
}

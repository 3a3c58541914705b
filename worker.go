package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// what to do with a message whose body cannot be parsed
type PoisonPolicy string

const (
	// acknowledge the message so it is never redelivered; the body is lost
	PoisonDelete PoisonPolicy = "delete"
	// leave the message leased, SQS redelivers it after the visibility timeout
	PoisonRequeue PoisonPolicy = "requeue"
	// capture the raw body to the dead-letter store, then acknowledge
	PoisonDeadLetter PoisonPolicy = "deadletter"
)

func ParsePoisonPolicy(s string) (PoisonPolicy, error) {
	switch PoisonPolicy(s) {
	case PoisonDelete, PoisonRequeue, PoisonDeadLetter:
		return PoisonPolicy(s), nil
	}
	return "", fmt.Errorf("invalid poison policy %q (must be delete, requeue or deadletter)", s)
}

type WorkerConfig struct {
	QueueName          string
	Shift              int
	MaxMessages        int // 0 = unlimited
	Continuous         bool
	PoisonPolicy       PoisonPolicy
	ReceiveWaitSeconds int32
	Quiet              bool
}

// sequential consumer: one long-poll receive, one lease, one transform, one
// delete per iteration. The processed counter is owned by this instance and
// never shared.
type Worker struct {
	config         WorkerConfig
	handle         QueueHandle
	sqsClient      SQSClientInterface
	deadLetters    DeadLetterStore
	retryDelay     time.Duration
	processedCount int
}

// NewWorker looks the queue up without creating it; a worker must not
// provision queues it does not own.
func NewWorker(ctx context.Context, awsConfig aws.Config, config WorkerConfig, deadLetters DeadLetterStore) (*Worker, error) {
	sqsClient := sqs.NewFromConfig(awsConfig)

	handle, err := NewQueueProvisioner(sqsClient, awsConfig.Region).Lookup(ctx, config.QueueName)
	if err != nil {
		if errors.Is(err, ErrQueueNotFound) {
			return nil, fmt.Errorf("queue %q does not exist, run the producer first to create it: %w", config.QueueName, err)
		}
		return nil, err
	}

	return &Worker{
		config:      config,
		handle:      handle,
		sqsClient:   sqsClient,
		deadLetters: deadLetters,
		retryDelay:  5 * time.Second,
	}, nil
}

func (w *Worker) ProcessedCount() int {
	return w.processedCount
}

// Run drives the receive/process/acknowledge loop until the context is
// cancelled, the configured message limit is reached, or a single-run pass
// finds the queue empty. It returns the number of acknowledged messages.
func (w *Worker) Run(ctx context.Context) (int, error) {
	mode := "continuous"
	if !w.config.Continuous {
		mode = "single run"
	}
	log.Info().
		Str("queue", w.handle.Name).
		Str("region", w.handle.Region).
		Int("shift", w.config.Shift).
		Str("mode", mode).
		Str("poison_policy", string(w.config.PoisonPolicy)).
		Msg("Starting cipher worker")

	defer w.shutdown()

	for {
		// check the cutoff before receiving so exactly MaxMessages
		// acknowledgments trigger no further receive calls
		if w.config.MaxMessages > 0 && w.processedCount >= w.config.MaxMessages {
			log.Info().Int("max_messages", w.config.MaxMessages).Msg("Message limit reached")
			return w.processedCount, nil
		}

		select {
		case <-ctx.Done():
			return w.processedCount, ctx.Err()
		default:
		}

		result, err := w.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(w.handle.URL),
			MaxNumberOfMessages:   1,
			WaitTimeSeconds:       w.config.ReceiveWaitSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return w.processedCount, ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to receive messages from SQS")

			// avoid hammering the API on persistent errors
			select {
			case <-ctx.Done():
				return w.processedCount, ctx.Err()
			case <-time.After(w.retryDelay):
			}
			continue
		}

		if len(result.Messages) == 0 {
			if !w.config.Continuous {
				log.Info().Msg("No messages available")
				return w.processedCount, nil
			}
			// long polling already waited, go straight back to receiving
			continue
		}

		w.handleMessage(ctx, result.Messages[0])
	}
}

func (w *Worker) handleMessage(ctx context.Context, sqsMsg types.Message) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(aws.ToString(sqsMsg.Body)), &envelope); err != nil {
		w.handlePoison(ctx, sqsMsg, err)
		return
	}

	processed := w.process(envelope)

	if !w.deleteMessage(ctx, sqsMsg) {
		// not counted; the lease expires and SQS redelivers
		return
	}

	w.processedCount++

	if w.config.Quiet {
		log.Debug().
			Int("count", w.processedCount).
			Str("original", processed.OriginalMessage).
			Str("encrypted", processed.EncryptedMessage).
			Str("processed_at", processed.ProcessedAt).
			Msg("Message processed")
	} else {
		log.Info().
			Int("count", w.processedCount).
			Str("original", processed.OriginalMessage).
			Str("encrypted", processed.EncryptedMessage).
			Str("processed_at", processed.ProcessedAt).
			Msg("Message processed")
	}
}

// process applies the cipher to the envelope. It is pure and never touches
// the queue.
func (w *Worker) process(envelope Envelope) ProcessedPayload {
	return ProcessedPayload{
		Message:          envelope.Message,
		Timestamp:        envelope.Timestamp,
		Status:           statusProcessed,
		OriginalMessage:  envelope.Message,
		EncryptedMessage: caesarCipher(envelope.Message, w.config.Shift),
		ProcessedAt:      time.Now().Format(time.RFC3339),
		CipherShift:      w.config.Shift,
	}
}

func (w *Worker) handlePoison(ctx context.Context, sqsMsg types.Message, cause error) {
	messageID := aws.ToString(sqsMsg.MessageId)
	log.Error().
		Err(cause).
		Str("message_id", messageID).
		Str("policy", string(w.config.PoisonPolicy)).
		Msg("Failed to parse message body")

	switch w.config.PoisonPolicy {
	case PoisonRequeue:
		// nothing to do, the lease runs out on its own
	case PoisonDeadLetter:
		record := PoisonRecord{
			ID:         xid.New().String(),
			QueueName:  w.handle.Name,
			Body:       aws.ToString(sqsMsg.Body),
			Reason:     cause.Error(),
			ReceivedAt: time.Now(),
		}
		if err := w.deadLetters.Capture(ctx, record); err != nil {
			log.Error().Err(err).Str("message_id", messageID).Msg("Failed to capture poison message, leaving it for redelivery")
			return
		}
		w.deleteMessage(ctx, sqsMsg)
	default:
		w.deleteMessage(ctx, sqsMsg)
	}
}

// deleteMessage acknowledges the message. A failed delete is logged and
// reported, never fatal: the message stays leased until the visibility
// timeout expires and SQS makes it available again.
func (w *Worker) deleteMessage(ctx context.Context, sqsMsg types.Message) bool {
	messageID := aws.ToString(sqsMsg.MessageId)

	_, err := w.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.handle.URL),
		ReceiptHandle: sqsMsg.ReceiptHandle,
	})
	if err != nil {
		log.Error().Str("message_id", messageID).Err(err).Msg("Failed to delete message from SQS")
		return false
	}

	log.Debug().Str("message_id", messageID).Msg("Message deleted from SQS")
	return true
}

// shutdown reports the final count plus a best-effort stats read. It uses a
// fresh context because the run context is usually already cancelled here.
func (w *Worker) shutdown() {
	log.Info().Int("processed", w.processedCount).Msg("Worker stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	attrs, err := fetchQueueAttributes(ctx, w.sqsClient, w.handle.URL)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to fetch final queue stats")
		return
	}

	log.Info().
		Int("remaining", attrs.Visible).
		Int("in_flight", attrs.InFlight).
		Msg("Final queue stats")
}

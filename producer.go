package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// maximum entries per SendMessageBatch call, fixed by the SQS API
const maxBatchEntries = 10

const producerSource = "producer-go"

// publishes envelope-wrapped messages onto the queue
type Producer struct {
	handle    QueueHandle
	sqsClient SQSClientInterface
}

// NewProducer resolves the queue, creating it on first use.
func NewProducer(ctx context.Context, awsConfig aws.Config, queueName string) (*Producer, error) {
	sqsClient := sqs.NewFromConfig(awsConfig)

	handle, err := NewQueueProvisioner(sqsClient, awsConfig.Region).Ensure(ctx, queueName)
	if err != nil {
		return nil, err
	}

	return &Producer{
		handle:    handle,
		sqsClient: sqsClient,
	}, nil
}

func (p *Producer) Handle() QueueHandle {
	return p.handle
}

func newEnvelopeBody(message string) string {
	body, _ := json.Marshal(Envelope{
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
		Status:    statusPending,
	})
	return string(body)
}

// Send enqueues a single message and returns the SQS message ID. Service
// errors surface to the caller, retry policy is the caller's decision.
func (p *Producer) Send(ctx context.Context, message string) (string, error) {
	now := time.Now().Format(time.RFC3339)

	result, err := p.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.handle.URL),
		MessageBody: aws.String(newEnvelopeBody(message)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Timestamp": {
				DataType:    aws.String("String"),
				StringValue: aws.String(now),
			},
			"Source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(producerSource),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	log.Debug().Str("message_id", messageID).Str("message", message).Msg("Message sent")
	return messageID, nil
}

// SendBatch enqueues the messages in SendMessageBatch chunks of up to ten
// entries. The result reports every input index exactly once; a failed chunk
// marks its indices failed and the remaining chunks are still attempted.
func (p *Producer) SendBatch(ctx context.Context, messages []string) (BatchResult, error) {
	var batchResult BatchResult

	for start := 0; start < len(messages); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(messages) {
			end = len(messages)
		}

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(i)),
				MessageBody: aws.String(newEnvelopeBody(messages[i])),
			})
		}

		result, err := p.sqsClient.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(p.handle.URL),
			Entries:  entries,
		})
		if err != nil {
			log.Error().Err(err).Int("chunk_start", start).Int("chunk_size", end-start).Msg("Batch send failed")
			for i := start; i < end; i++ {
				batchResult.Failed = append(batchResult.Failed, BatchEntryError{
					Index:   i,
					Code:    "RequestError",
					Message: err.Error(),
				})
			}
			continue
		}

		for _, entry := range result.Successful {
			index, err := strconv.Atoi(aws.ToString(entry.Id))
			if err != nil {
				continue
			}
			batchResult.Successful = append(batchResult.Successful, index)
		}

		for _, entry := range result.Failed {
			index, err := strconv.Atoi(aws.ToString(entry.Id))
			if err != nil {
				continue
			}
			batchResult.Failed = append(batchResult.Failed, BatchEntryError{
				Index:   index,
				Code:    aws.ToString(entry.Code),
				Message: aws.ToString(entry.Message),
			})
		}
	}

	log.Debug().
		Int("successful", len(batchResult.Successful)).
		Int("failed", len(batchResult.Failed)).
		Msg("Batch send complete")

	return batchResult, nil
}

// Stats reads the advisory queue counters.
func (p *Producer) Stats(ctx context.Context) (QueueAttributes, error) {
	return fetchQueueAttributes(ctx, p.sqsClient, p.handle.URL)
}

package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// narrow view of the SQS API so tests can swap in a mock
type SQSClientInterface interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// identifies a logical queue; URL is set once by the provisioner and never
// mutated afterwards
type QueueHandle struct {
	Name   string
	Region string
	URL    string
}

// wire format of a produced message body
type Envelope struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// envelope fields plus the cipher output, produced by the worker
type ProcessedPayload struct {
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
	Status           string `json:"status"`
	OriginalMessage  string `json:"original_message"`
	EncryptedMessage string `json:"encrypted_message"`
	ProcessedAt      string `json:"processed_at"`
	CipherShift      int    `json:"cipher_shift"`
}

const (
	statusPending   = "pending"
	statusProcessed = "processed"
)

// advisory queue counters, approximate and eventually consistent
type QueueAttributes struct {
	Visible  int
	InFlight int
	Delayed  int
}

// per-entry failure inside a batch send, Index refers to the input slice
type BatchEntryError struct {
	Index   int
	Code    string
	Message string
}

// outcome of SendBatch across all chunks of one logical batch
type BatchResult struct {
	Successful []int
	Failed     []BatchEntryError
}

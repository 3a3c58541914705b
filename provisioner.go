package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// attributes applied when a queue is created
const (
	queueRetentionSeconds  = "345600" // 4 days
	queueVisibilityTimeout = "60"
	queueLongPollSeconds   = "20"
)

var ErrQueueNotFound = errors.New("queue does not exist")

// resolves logical queue names to URLs, creating the queue only when the
// caller asks for it via Ensure
type QueueProvisioner struct {
	sqsClient SQSClientInterface
	region    string
}

func NewQueueProvisioner(sqsClient SQSClientInterface, region string) *QueueProvisioner {
	return &QueueProvisioner{
		sqsClient: sqsClient,
		region:    region,
	}
}

// Lookup resolves an existing queue and never creates one. A missing queue
// is reported as ErrQueueNotFound; any other failure means the lookup itself
// broke and must not be treated as absence.
func (p *QueueProvisioner) Lookup(ctx context.Context, name string) (QueueHandle, error) {
	result, err := p.sqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		var notFound *types.QueueDoesNotExist
		if errors.As(err, &notFound) {
			return QueueHandle{}, fmt.Errorf("queue %q: %w", name, ErrQueueNotFound)
		}
		return QueueHandle{}, fmt.Errorf("failed to look up queue %q: %w", name, err)
	}

	return QueueHandle{
		Name:   name,
		Region: p.region,
		URL:    aws.ToString(result.QueueUrl),
	}, nil
}

// Ensure resolves the queue, creating it with fixed attributes when the
// lookup reports not-found. Only that condition triggers creation; a second
// call for an existing queue returns the same URL without side effects.
func (p *QueueProvisioner) Ensure(ctx context.Context, name string) (QueueHandle, error) {
	handle, err := p.Lookup(ctx, name)
	if err == nil {
		log.Debug().Str("queue", name).Str("url", handle.URL).Msg("Queue found")
		return handle, nil
	}
	if !errors.Is(err, ErrQueueNotFound) {
		return QueueHandle{}, err
	}

	log.Info().Str("queue", name).Msg("Queue does not exist, creating")

	result, err := p.sqsClient.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(types.QueueAttributeNameMessageRetentionPeriod):        queueRetentionSeconds,
			string(types.QueueAttributeNameVisibilityTimeout):             queueVisibilityTimeout,
			string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds): queueLongPollSeconds,
		},
	})
	if err != nil {
		return QueueHandle{}, fmt.Errorf("failed to create queue %q: %w", name, err)
	}

	handle = QueueHandle{
		Name:   name,
		Region: p.region,
		URL:    aws.ToString(result.QueueUrl),
	}

	log.Info().Str("queue", name).Str("url", handle.URL).Msg("Queue created")
	return handle, nil
}

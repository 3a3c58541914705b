package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// fetchQueueAttributes reads the approximate message counters. The numbers
// are eventually consistent and only good for observability, never for
// correctness decisions.
func fetchQueueAttributes(ctx context.Context, sqsClient SQSClientInterface, queueURL string) (QueueAttributes, error) {
	result, err := sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
		},
	})
	if err != nil {
		return QueueAttributes{}, fmt.Errorf("failed to fetch queue attributes: %w", err)
	}

	return QueueAttributes{
		Visible:  attrCount(result.Attributes, types.QueueAttributeNameApproximateNumberOfMessages),
		InFlight: attrCount(result.Attributes, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		Delayed:  attrCount(result.Attributes, types.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

// attribute values come back as decimal strings, a missing or malformed
// value counts as zero
func attrCount(attrs map[string]string, name types.QueueAttributeName) int {
	n, err := strconv.Atoi(attrs[string(name)])
	if err != nil {
		return 0
	}
	return n
}

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/message-queue"

func TestLookupSuccess(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.MatchedBy(func(input *sqs.GetQueueUrlInput) bool {
		return *input.QueueName == "message-queue"
	})).Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(testQueueURL)}, nil)

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	handle, err := provisioner.Lookup(context.Background(), "message-queue")

	assert.NoError(t, err)
	assert.Equal(t, "message-queue", handle.Name)
	assert.Equal(t, "us-east-1", handle.Region)
	assert.Equal(t, testQueueURL, handle.URL)
	mockSQS.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestLookupNotFound(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")})

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	_, err := provisioner.Lookup(context.Background(), "missing-queue")

	assert.ErrorIs(t, err, ErrQueueNotFound)
	mockSQS.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestLookupAmbiguousError(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, errors.New("access denied"))

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	_, err := provisioner.Lookup(context.Background(), "message-queue")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueueNotFound)
	mockSQS.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestEnsureCreatesWhenMissing(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")})
	mockSQS.On("CreateQueue", mock.Anything, mock.MatchedBy(func(input *sqs.CreateQueueInput) bool {
		return *input.QueueName == "message-queue" &&
			input.Attributes[string(types.QueueAttributeNameMessageRetentionPeriod)] == "345600" &&
			input.Attributes[string(types.QueueAttributeNameVisibilityTimeout)] == "60" &&
			input.Attributes[string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds)] == "20"
	})).Return(&sqs.CreateQueueOutput{QueueUrl: aws.String(testQueueURL)}, nil)

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	handle, err := provisioner.Ensure(context.Background(), "message-queue")

	assert.NoError(t, err)
	assert.Equal(t, testQueueURL, handle.URL)
	mockSQS.AssertExpectations(t)
}

func TestEnsureIdempotent(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(testQueueURL)}, nil)

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	first, err := provisioner.Ensure(context.Background(), "message-queue")
	assert.NoError(t, err)

	second, err := provisioner.Ensure(context.Background(), "message-queue")
	assert.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	mockSQS.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestEnsureDoesNotCreateOnAmbiguousError(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, errors.New("throttled"))

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	_, err := provisioner.Ensure(context.Background(), "message-queue")

	assert.Error(t, err)
	mockSQS.AssertNotCalled(t, "CreateQueue", mock.Anything, mock.Anything)
}

func TestEnsureCreateFails(t *testing.T) {
	mockSQS := new(MockSQSClient)
	mockSQS.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")})
	mockSQS.On("CreateQueue", mock.Anything, mock.Anything).
		Return(nil, errors.New("not authorized"))

	provisioner := NewQueueProvisioner(mockSQS, "us-east-1")

	_, err := provisioner.Ensure(context.Background(), "message-queue")

	assert.Error(t, err)
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/tcmartin/dagrunner/pkg/models"
)

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// DynamoDBProvider stores snapshots in a DynamoDB table keyed by PipelineID
type DynamoDBProvider struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// dynamoStateItem is the table row; the snapshot itself is a JSON string attribute
type dynamoStateItem struct {
	PipelineID  string `dynamodbav:"PipelineID"`
	ExecutionID string `dynamodbav:"ExecutionID"`
	Status      string `dynamodbav:"Status"`
	State       string `dynamodbav:"State"`
	UpdatedAt   int64  `dynamodbav:"UpdatedAt"`
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	// Set credentials if provided
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	// Set endpoint for local DynamoDB if provided
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix), nil
}

// NewDynamoDBProviderWithClient creates a DynamoDB provider with a custom client.
// Tests pass a MockDynamoDBAPI here.
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	return &DynamoDBProvider{
		client:    client,
		tableName: tablePrefix + "execution_states",
	}
}

// Initialize creates the state table if it doesn't exist
func (p *DynamoDBProvider) Initialize(ctx context.Context) error {
	_, err := p.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	})
	if err == nil {
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to describe table %s: %w", p.tableName, err)
	}

	_, err = p.client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(p.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("PipelineID"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("PipelineID"),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.tableName, err)
	}

	if err := p.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(p.tableName),
	}); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", p.tableName, err)
	}

	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// Nothing to close for DynamoDB client
	return nil
}

// Save persists the snapshot
func (p *DynamoDBProvider) Save(ctx context.Context, state *models.ExecutionState) error {
	data, err := encodeState(state)
	if err != nil {
		return persistErr("save", pipelineIDOf(state), err)
	}

	av, err := dynamodbattribute.MarshalMap(dynamoStateItem{
		PipelineID:  state.PipelineID,
		ExecutionID: state.ExecutionID,
		Status:      string(state.Status),
		State:       string(data),
		UpdatedAt:   time.Now().Unix(),
	})
	if err != nil {
		return persistErr("save", state.PipelineID, err)
	}

	_, err = p.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item:      av,
	})
	if err != nil {
		return persistErr("save", state.PipelineID, err)
	}
	return nil
}

// Load retrieves the snapshot for a pipeline
func (p *DynamoDBProvider) Load(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	result, err := p.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"PipelineID": {S: aws.String(pipelineID)},
		},
	})
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	if result.Item == nil {
		return nil, ErrStateNotFound
	}

	var item dynamoStateItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, persistErr("load", pipelineID, err)
	}

	state, err := decodeState([]byte(item.State))
	if err != nil {
		return nil, persistErr("load", pipelineID, err)
	}
	return state, nil
}

// Clear removes the snapshot for a pipeline
func (p *DynamoDBProvider) Clear(ctx context.Context, pipelineID string) error {
	_, err := p.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(p.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"PipelineID": {S: aws.String(pipelineID)},
		},
	})
	if err != nil {
		return persistErr("clear", pipelineID, err)
	}
	return nil
}

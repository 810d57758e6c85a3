package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

// MockDynamoDBAPI is an in-memory stand-in for the DynamoDB client. Only the
// calls DynamoDBProvider makes are implemented; anything else panics through
// the nil embedded interface.
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*MockTable
}

// MockTable represents a DynamoDB table in memory
type MockTable struct {
	Name        string
	Items       map[string]map[string]*dynamodb.AttributeValue
	BillingMode string
	TableStatus string
	KeySchema   []*dynamodb.KeySchemaElement
}

// NewMockDynamoDBAPI creates a new mock DynamoDB client
func NewMockDynamoDBAPI() *MockDynamoDBAPI {
	return &MockDynamoDBAPI{
		tables: make(map[string]*MockTable),
	}
}

// CreateTable creates a mock table
func (m *MockDynamoDBAPI) CreateTable(input *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := aws.StringValue(input.TableName)
	if _, exists := m.tables[tableName]; exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "table already exists: "+tableName, nil)
	}

	m.tables[tableName] = &MockTable{
		Name:        tableName,
		Items:       make(map[string]map[string]*dynamodb.AttributeValue),
		BillingMode: aws.StringValue(input.BillingMode),
		TableStatus: dynamodb.TableStatusActive,
		KeySchema:   input.KeySchema,
	}

	return &dynamodb.CreateTableOutput{
		TableDescription: &dynamodb.TableDescription{
			TableName:   input.TableName,
			TableStatus: aws.String(dynamodb.TableStatusActive),
		},
	}, nil
}

// DescribeTable describes a mock table
func (m *MockDynamoDBAPI) DescribeTable(input *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, exists := m.tables[aws.StringValue(input.TableName)]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "Requested resource not found", nil)
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:   aws.String(table.Name),
			TableStatus: aws.String(table.TableStatus),
			KeySchema:   table.KeySchema,
			BillingModeSummary: &dynamodb.BillingModeSummary{
				BillingMode: aws.String(table.BillingMode),
			},
		},
	}, nil
}

// WaitUntilTableExists returns immediately; mock tables are available at creation
func (m *MockDynamoDBAPI) WaitUntilTableExists(input *dynamodb.DescribeTableInput) error {
	return nil
}

// PutItemWithContext puts an item into a mock table
func (m *MockDynamoDBAPI) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	table.Items[m.generateKey(table.KeySchema, input.Item)] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

// GetItemWithContext gets an item from a mock table
func (m *MockDynamoDBAPI) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	item, exists := table.Items[m.generateKey(table.KeySchema, input.Key)]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// DeleteItemWithContext deletes an item from a mock table
func (m *MockDynamoDBAPI) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	delete(table.Items, m.generateKey(table.KeySchema, input.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *MockDynamoDBAPI) table(name *string) (*MockTable, error) {
	table, exists := m.tables[aws.StringValue(name)]
	if !exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, fmt.Sprintf("table not found: %s", aws.StringValue(name)), nil)
	}
	return table, nil
}

// generateKey generates a composite key from key schema and item attributes
func (m *MockDynamoDBAPI) generateKey(keySchema []*dynamodb.KeySchemaElement, item map[string]*dynamodb.AttributeValue) string {
	var keyParts []string
	for _, keyElement := range keySchema {
		attrName := aws.StringValue(keyElement.AttributeName)
		if attr, exists := item[attrName]; exists {
			if attr.S != nil {
				keyParts = append(keyParts, aws.StringValue(attr.S))
			} else if attr.N != nil {
				keyParts = append(keyParts, aws.StringValue(attr.N))
			}
		}
	}
	return strings.Join(keyParts, "#")
}

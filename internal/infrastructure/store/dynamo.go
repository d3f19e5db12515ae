package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/stock-ledger/internal/domain/stock"
)

// DynamoStore implements RecordStore on DynamoDB. Condition expressions
// cannot compare two attributes, so the derived available quantity is kept
// as its own attribute and maintained inside the same UpdateItem call that
// checks it — the check and the write stay one atomic step.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoRecord is the DynamoDB item structure
type dynamoRecord struct {
	ProductID        string `dynamodbav:"product_id"`
	ProductName      string `dynamodbav:"product_name"`
	OwnerID          string `dynamodbav:"owner_id"`
	StockQuantity    int    `dynamodbav:"stock_quantity"`
	ReservedQuantity int    `dynamodbav:"reserved_quantity"`
	AvailableStock   int    `dynamodbav:"available_stock"`
	SoldQuantity     int    `dynamodbav:"sold_quantity"`
	ReorderLevel     int    `dynamodbav:"reorder_level"`
	MaxStockLevel    int    `dynamodbav:"max_stock_level"`
	UnitCost         int64  `dynamodbav:"unit_cost"`
	UnitPrice        int64  `dynamodbav:"unit_price"`
	IsActive         bool   `dynamodbav:"is_active"`
	RequiresApproval bool   `dynamodbav:"requires_approval"`
	Notes            string `dynamodbav:"notes"`
	CreatedAt        string `dynamodbav:"created_at"`
	UpdatedAt        string `dynamodbav:"updated_at"`
	LastRestockedAt  string `dynamodbav:"last_restocked_at,omitempty"`
	LastSoldAt       string `dynamodbav:"last_sold_at,omitempty"`
}

func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Create(ctx context.Context, rec *stock.Record) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	av, err := attributevalue.MarshalMap(toDynamoRecord(rec))
	if err != nil {
		return fmt.Errorf("marshal stock record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(product_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return stock.ErrRecordConflict
		}
		return fmt.Errorf("put stock record: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, productID string) (*stock.Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
	})
	if err != nil {
		return nil, fmt.Errorf("get stock record: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, stock.ErrRecordNotFound
	}
	return unmarshalRecord(result.Item)
}

func (s *DynamoStore) List(ctx context.Context) ([]*stock.Record, error) {
	return s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tableName)})
}

func (s *DynamoStore) ListByOwner(ctx context.Context, ownerID string) ([]*stock.Record, error) {
	return s.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("owner_id = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
}

func (s *DynamoStore) ListActive(ctx context.Context) ([]*stock.Record, error) {
	return s.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("is_active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
}

func (s *DynamoStore) UpdateDetails(ctx context.Context, productID string, d Details) (*stock.Record, error) {
	expr := "SET updated_at = :t"
	values := map[string]types.AttributeValue{
		":t": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
	}
	names := map[string]string{}

	set := func(attr, placeholder string, av types.AttributeValue) {
		expr += fmt.Sprintf(", #%s = %s", placeholder, ":"+placeholder)
		names["#"+placeholder] = attr
		values[":"+placeholder] = av
	}
	if d.ProductName != nil {
		set("product_name", "pn", &types.AttributeValueMemberS{Value: *d.ProductName})
	}
	if d.ReorderLevel != nil {
		set("reorder_level", "rl", &types.AttributeValueMemberN{Value: fmt.Sprint(*d.ReorderLevel)})
	}
	if d.MaxStockLevel != nil {
		set("max_stock_level", "ms", &types.AttributeValueMemberN{Value: fmt.Sprint(*d.MaxStockLevel)})
	}
	if d.UnitCost != nil {
		set("unit_cost", "uc", &types.AttributeValueMemberN{Value: fmt.Sprint(*d.UnitCost)})
	}
	if d.UnitPrice != nil {
		set("unit_price", "up", &types.AttributeValueMemberN{Value: fmt.Sprint(*d.UnitPrice)})
	}
	if d.RequiresApproval != nil {
		set("requires_approval", "ra", &types.AttributeValueMemberBOOL{Value: *d.RequiresApproval})
	}
	if d.Notes != nil {
		set("notes", "no", &types.AttributeValueMemberS{Value: *d.Notes})
	}
	if len(names) == 0 {
		names = nil
	}

	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       dynamoKey(productID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(product_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}, stock.ErrRecordNotFound)
}

func (s *DynamoStore) SetActive(ctx context.Context, productID string, active bool) (*stock.Record, error) {
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 dynamoKey(productID),
		UpdateExpression:    aws.String("SET is_active = :a, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": &types.AttributeValueMemberBOOL{Value: active},
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrRecordNotFound)
}

func (s *DynamoStore) Delete(ctx context.Context, productID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 dynamoKey(productID),
		ConditionExpression: aws.String("attribute_exists(product_id) AND reserved_quantity = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if _, getErr := s.Get(ctx, productID); getErr != nil {
				return getErr
			}
			return stock.ErrRecordConflict
		}
		return fmt.Errorf("delete stock record: %w", err)
	}
	return nil
}

func (s *DynamoStore) Reserve(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET reserved_quantity = reserved_quantity + :q, available_stock = available_stock - :q, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id) AND available_stock >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrInsufficientStock)
}

func (s *DynamoStore) Release(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET reserved_quantity = reserved_quantity - :q, available_stock = available_stock + :q, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id) AND reserved_quantity >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrInsufficientStock)
}

func (s *DynamoStore) ConfirmSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	// Available stock is unchanged: the sold units were already reserved.
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET stock_quantity = stock_quantity - :q, reserved_quantity = reserved_quantity - :q, " +
				"sold_quantity = sold_quantity + :q, last_sold_at = :t, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id) AND reserved_quantity >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrInsufficientStock)
}

func (s *DynamoStore) DirectSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET stock_quantity = stock_quantity - :q, available_stock = available_stock - :q, " +
				"sold_quantity = sold_quantity + :q, last_sold_at = :t, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id) AND available_stock >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrInsufficientStock)
}

func (s *DynamoStore) Restock(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET stock_quantity = stock_quantity + :q, available_stock = available_stock + :q, " +
				"last_restocked_at = :t, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrRecordNotFound)
}

func (s *DynamoStore) SetQuantity(ctx context.Context, productID string, qty int, note string) (*stock.Record, error) {
	// Update expressions cannot concatenate strings, so the note trail is
	// built from a prior read. The quantity check itself stays conditional.
	current, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	notes := appendNote(current.Notes, note)

	return s.update(ctx, productID, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(productID),
		UpdateExpression: aws.String(
			"SET stock_quantity = :q, available_stock = :q - reserved_quantity, " +
				"notes = :n, updated_at = :t"),
		ConditionExpression: aws.String("attribute_exists(product_id) AND reserved_quantity <= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qtyAttr(qty),
			":n": &types.AttributeValueMemberS{Value: notes},
			":t": nowAttr(),
		},
		ReturnValues: types.ReturnValueAllNew,
	}, stock.ErrRecordConflict)
}

// update runs a conditional UpdateItem and maps a failed condition to either
// not-found or the precondition error, depending on whether the item exists.
func (s *DynamoStore) update(ctx context.Context, productID string, input *dynamodb.UpdateItemInput, precondErr error) (*stock.Record, error) {
	result, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if _, getErr := s.Get(ctx, productID); getErr != nil {
				return nil, getErr
			}
			return nil, precondErr
		}
		return nil, fmt.Errorf("update stock record: %w", err)
	}
	return unmarshalRecord(result.Attributes)
}

func (s *DynamoStore) scan(ctx context.Context, input *dynamodb.ScanInput) ([]*stock.Record, error) {
	var records []*stock.Record
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan stock records: %w", err)
		}
		for _, item := range result.Items {
			rec, err := unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if result.LastEvaluatedKey == nil {
			return records, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func dynamoKey(productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
}

func qtyAttr(qty int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprint(qty)}
}

func nowAttr() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)}
}

func toDynamoRecord(rec *stock.Record) dynamoRecord {
	d := dynamoRecord{
		ProductID:        rec.ProductID,
		ProductName:      rec.ProductName,
		OwnerID:          rec.OwnerID,
		StockQuantity:    rec.StockQuantity,
		ReservedQuantity: rec.ReservedQuantity,
		AvailableStock:   rec.StockQuantity - rec.ReservedQuantity,
		SoldQuantity:     rec.SoldQuantity,
		ReorderLevel:     rec.ReorderLevel,
		MaxStockLevel:    rec.MaxStockLevel,
		UnitCost:         rec.UnitCost,
		UnitPrice:        rec.UnitPrice,
		IsActive:         rec.IsActive,
		RequiresApproval: rec.RequiresApproval,
		Notes:            rec.Notes,
		CreatedAt:        rec.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:        rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !rec.LastRestockedAt.IsZero() {
		d.LastRestockedAt = rec.LastRestockedAt.Format(time.RFC3339Nano)
	}
	if !rec.LastSoldAt.IsZero() {
		d.LastSoldAt = rec.LastSoldAt.Format(time.RFC3339Nano)
	}
	return d
}

func unmarshalRecord(item map[string]types.AttributeValue) (*stock.Record, error) {
	var d dynamoRecord
	if err := attributevalue.UnmarshalMap(item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal stock record: %w", err)
	}

	rec := &stock.Record{
		ProductID:        d.ProductID,
		ProductName:      d.ProductName,
		OwnerID:          d.OwnerID,
		StockQuantity:    d.StockQuantity,
		ReservedQuantity: d.ReservedQuantity,
		SoldQuantity:     d.SoldQuantity,
		ReorderLevel:     d.ReorderLevel,
		MaxStockLevel:    d.MaxStockLevel,
		UnitCost:         d.UnitCost,
		UnitPrice:        d.UnitPrice,
		IsActive:         d.IsActive,
		RequiresApproval: d.RequiresApproval,
		Notes:            d.Notes,
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
	if d.LastRestockedAt != "" {
		rec.LastRestockedAt, _ = time.Parse(time.RFC3339Nano, d.LastRestockedAt)
	}
	if d.LastSoldAt != "" {
		rec.LastSoldAt, _ = time.Parse(time.RFC3339Nano, d.LastSoldAt)
	}
	return rec, nil
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/ivarator/blobstore"
)

// maxItemPayload keeps marker payloads well below DynamoDB's 400KB item limit.
const maxItemPayload = 350 * 1024

// ErrPayloadTooLarge is returned when a blob does not fit into one item.
var ErrPayloadTooLarge = errors.New("s3: payload too large for marker store")

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBMarkerStore implements blobstore.Store for small blobs in DynamoDB.
//
// It backs the control directory of a cache (ownership and completion
// markers) when segment data lives in S3: DynamoDB reads are strongly
// consistent and a marker never has to be listed through S3.
//
// Table schema:
//   - Partition key: dir (string) - the parent path of the blob
//   - Sort key: name (string) - the base name of the blob
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name ivarator-markers \
//	  --attribute-definitions AttributeName=dir,AttributeType=S AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=dir,KeyType=HASH AttributeName=name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// Listing is single-level: List("a/b/") returns the blobs directly under a/b.
type DDBMarkerStore struct {
	client    DDBClient
	tableName string
	root      string
}

var _ blobstore.Store = (*DDBMarkerStore)(nil)

// NewDDBMarkerStore creates a marker store. root namespaces every item.
func NewDDBMarkerStore(client DDBClient, tableName, root string) *DDBMarkerStore {
	return &DDBMarkerStore{client: client, tableName: tableName, root: root}
}

func (s *DDBMarkerStore) itemKey(name string) map[string]types.AttributeValue {
	full := path.Join(s.root, name)
	return map[string]types.AttributeValue{
		"dir":  &types.AttributeValueMemberS{Value: path.Dir(full)},
		"name": &types.AttributeValueMemberS{Value: path.Base(full)},
	}
}

func (s *DDBMarkerStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: get marker %s: %w", name, err)
	}
	if resp.Item == nil {
		return nil, blobstore.ErrNotFound
	}
	data, ok := resp.Item["data"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("s3: marker %s has no data attribute", name)
	}
	return &itemBlob{content: data.Value}, nil
}

func (s *DDBMarkerStore) Put(ctx context.Context, name string, data []byte) error {
	if len(data) > maxItemPayload {
		return ErrPayloadTooLarge
	}
	item := s.itemKey(name)
	item["data"] = &types.AttributeValueMemberB{Value: bytes.Clone(data)}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("s3: put marker %s: %w", name, err)
	}
	return nil
}

func (s *DDBMarkerStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return &itemWritableBlob{ctx: ctx, store: s, name: name}, nil
}

func (s *DDBMarkerStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(name),
	})
	return err
}

func (s *DDBMarkerStore) List(ctx context.Context, prefix string) ([]string, error) {
	full := path.Join(s.root, prefix)
	dir, base := path.Dir(full), path.Base(full)
	if strings.HasSuffix(prefix, "/") || prefix == "" {
		dir, base = full, ""
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#d = :dir"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dir": &types.AttributeValueMemberS{Value: dir},
		},
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#n"),
		ExpressionAttributeNames: map[string]string{
			"#d": "dir",
			"#n": "name",
		},
	}
	if base != "" {
		input.KeyConditionExpression = aws.String("#d = :dir AND begins_with(#n, :base)")
		input.ExpressionAttributeValues[":base"] = &types.AttributeValueMemberS{Value: base}
	}

	var names []string
	for {
		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3: list markers %s: %w", prefix, err)
		}
		for _, item := range resp.Items {
			n, ok := item["name"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			rel := strings.TrimPrefix(path.Join(dir, n.Value), s.root)
			names = append(names, strings.TrimPrefix(rel, "/"))
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	sort.Strings(names)
	return names, nil
}

func (s *DDBMarkerStore) Exists(ctx context.Context, name string) (bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  s.itemKey(name),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#n"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
	})
	if err != nil {
		return false, err
	}
	return resp.Item != nil, nil
}

// itemBlob is an in-memory view of one item payload.
type itemBlob struct {
	content []byte
}

func (b *itemBlob) Close() error { return nil }

func (b *itemBlob) Size() int64 { return int64(len(b.content)) }

func (b *itemBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *itemBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= int64(len(b.content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := min(off+length, int64(len(b.content)))
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}

type itemWritableBlob struct {
	ctx   context.Context
	store *DDBMarkerStore
	name  string
	buf   bytes.Buffer
	done  bool
}

func (w *itemWritableBlob) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > maxItemPayload {
		return 0, ErrPayloadTooLarge
	}
	return w.buf.Write(p)
}

func (w *itemWritableBlob) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.store.Put(w.ctx, w.name, w.buf.Bytes())
}

func (w *itemWritableBlob) Sync() error { return nil }

func (w *itemWritableBlob) Abort() error {
	w.done = true
	return nil
}

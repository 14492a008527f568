package s3

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/ivarator/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // dir + "\x00" + name -> item
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemID(key map[string]types.AttributeValue) string {
	return key["dir"].(*types.AttributeValueMemberS).Value + "\x00" + key["name"].(*types.AttributeValueMemberS).Value
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemID(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &dynamodb.GetItemOutput{Item: m.items[itemID(params.Key)]}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := params.ExpressionAttributeValues[":dir"].(*types.AttributeValueMemberS).Value
	var base string
	if v, ok := params.ExpressionAttributeValues[":base"]; ok {
		base = v.(*types.AttributeValueMemberS).Value
	}

	var out []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["dir"].(*types.AttributeValueMemberS).Value != dir {
			continue
		}
		if !strings.HasPrefix(item["name"].(*types.AttributeValueMemberS).Value, base) {
			continue
		}
		out = append(out, map[string]types.AttributeValue{"name": item["name"]})
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func TestDDBMarkerStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewDDBMarkerStore(newMockDDBClient(), "ivarator-markers", "cache")

	ok, err := store.Exists(ctx, "q1/row1/complete")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Open(ctx, "q1/row1/complete")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "q1/row1/ownership", []byte("host://a")))
	w, err := store.Create(ctx, "q1/row1/complete")
	require.NoError(t, err)
	_, err = w.Write([]byte("complete"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := blobstore.ReadAll(ctx, store, "q1/row1/ownership")
	require.NoError(t, err)
	assert.Equal(t, "host://a", string(got))

	names, err := store.List(ctx, "q1/row1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1/row1/complete", "q1/row1/ownership"}, names)

	names, err = store.List(ctx, "q1/row1/own")
	require.NoError(t, err)
	assert.Equal(t, []string{"q1/row1/ownership"}, names)

	require.NoError(t, blobstore.DeletePrefix(ctx, store, "q1/row1/"))
	names, err = store.List(ctx, "q1/row1/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDDBMarkerStore_PayloadLimit(t *testing.T) {
	store := NewDDBMarkerStore(newMockDDBClient(), "t", "")
	err := store.Put(context.Background(), "big", make([]byte, maxItemPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, ok := any(store).(blobstore.Appender)
	assert.False(t, ok)
}

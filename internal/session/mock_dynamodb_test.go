package session

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// sessionMock is a minimal in-memory stand-in for the sessions table:
// items are kept per principal, sorted by created_at_unix. It only models the
// expressions this package actually issues.
type sessionMock struct {
	mu            sync.Mutex
	items         map[string][]map[string]types.AttributeValue // principal -> items
	queryCalls    int
	putCalls      int
	transactCalls int

	// when set, the corresponding call fails without mutating state
	putErr      error
	transactErr error
}

func newSessionMock() *sessionMock {
	return &sessionMock{items: map[string][]map[string]types.AttributeValue{}}
}

func itemUnix(item map[string]types.AttributeValue) int64 {
	n, ok := item["created_at_unix"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v
}

func (m *sessionMock) put(item map[string]types.AttributeValue) error {
	p, ok := item["principal"].(*types.AttributeValueMemberS)
	if !ok {
		return errors.New("missing principal")
	}
	m.items[p.Value] = append(m.items[p.Value], item)
	sort.Slice(m.items[p.Value], func(i, j int) bool {
		return itemUnix(m.items[p.Value][i]) < itemUnix(m.items[p.Value][j])
	})
	return nil
}

func (m *sessionMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return nil, m.putErr
	}
	if err := m.put(params.Item); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (m *sessionMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	return nil, errors.New("GetItem not used by session store")
}

func (m *sessionMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("UpdateItem not used by session store")
}

func (m *sessionMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("Scan not used by session store")
}

func (m *sessionMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	p, ok := params.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing :p")
	}
	items := m.items[p.Value]
	if len(items) == 0 {
		return &dyn.QueryOutput{}, nil
	}
	// store keeps ascending order; descending query returns newest first
	out := make([]map[string]types.AttributeValue, len(items))
	copy(out, items)
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if params.Limit != nil && int(*params.Limit) < len(out) {
		out = out[:*params.Limit]
	}
	return &dyn.QueryOutput{Items: out}, nil
}

func (m *sessionMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if m.transactErr != nil {
		return nil, m.transactErr
	}
	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			if err := m.put(it.Put.Item); err != nil {
				return nil, err
			}
		case it.Update != nil:
			// only the deactivation update is issued: SET is_active = :f
			p := it.Update.Key["principal"].(*types.AttributeValueMemberS).Value
			unix := it.Update.Key["created_at_unix"].(*types.AttributeValueMemberN)
			target, _ := strconv.ParseInt(unix.Value, 10, 64)
			found := false
			for _, item := range m.items[p] {
				if itemUnix(item) == target {
					item["is_active"] = &types.AttributeValueMemberBOOL{Value: false}
					found = true
				}
			}
			if !found {
				return nil, errors.New("update target not found")
			}
		default:
			return nil, errors.New("unsupported transact item")
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

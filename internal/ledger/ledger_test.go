package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

type memPersister struct {
	keys    []string
	saves   int
	saveErr error
	loadErr error
}

func (m *memPersister) LoadProcessed(context.Context) ([]string, error) {
	return m.keys, m.loadErr
}

func (m *memPersister) SaveProcessed(_ context.Context, keys []string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.keys = keys
	return nil
}

var alice = model.Lead{Name: "Alice", Company: "X", Email: "alice@x.com"}

func TestLedger_SeededFromStore(t *testing.T) {
	p := &memPersister{keys: []string{"AliceXalice@x.com"}}
	l, err := Load(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, l.IsProcessed(alice))
	assert.False(t, l.IsProcessed(model.Lead{Name: "Bob", Company: "Y", Email: "bob@y.com"}))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_MarkProcessedFlushesFullSet(t *testing.T) {
	p := &memPersister{keys: []string{"seed"}}
	l, err := Load(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed(context.Background(), alice))
	assert.True(t, l.IsProcessed(alice))
	assert.Equal(t, []string{"seed", "AliceXalice@x.com"}, p.keys)
	assert.Equal(t, 1, p.saves)
}

func TestLedger_MarkProcessedIdempotent(t *testing.T) {
	p := &memPersister{}
	l, err := Load(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed(context.Background(), alice))
	require.NoError(t, l.MarkProcessed(context.Background(), alice))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []string{"AliceXalice@x.com"}, p.keys)
	assert.Equal(t, 1, p.saves)
}

func TestLedger_DuplicateKeysInStorageCollapse(t *testing.T) {
	p := &memPersister{keys: []string{"a", "a", "b"}}
	l, err := Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestLedger_CaseSensitiveKey(t *testing.T) {
	l, err := Load(context.Background(), &memPersister{})
	require.NoError(t, err)
	require.NoError(t, l.MarkProcessed(context.Background(), alice))

	upper := alice
	upper.Email = "ALICE@x.com"
	assert.False(t, l.IsProcessed(upper))
}

func TestLedger_ConcatKeyCollides(t *testing.T) {
	l, err := Load(context.Background(), &memPersister{})
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed(context.Background(), model.Lead{Name: "AB", Company: "C", Email: "e"}))
	assert.True(t, l.IsProcessed(model.Lead{Name: "A", Company: "BC", Email: "e"}))
}

func TestLedger_StructuredKeyAvoidsCollision(t *testing.T) {
	l, err := Load(context.Background(), &memPersister{}, WithKeyFunc(KeyStructured))
	require.NoError(t, err)

	require.NoError(t, l.MarkProcessed(context.Background(), model.Lead{Name: "AB", Company: "C", Email: "e"}))
	assert.False(t, l.IsProcessed(model.Lead{Name: "A", Company: "BC", Email: "e"}))
}

func TestLedger_LoadError(t *testing.T) {
	_, err := Load(context.Background(), &memPersister{loadErr: errors.New("disk gone")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestLedger_SaveErrorKeepsInMemoryMark(t *testing.T) {
	p := &memPersister{saveErr: errors.New("read-only")}
	l, err := Load(context.Background(), p)
	require.NoError(t, err)

	err = l.MarkProcessed(context.Background(), alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
	assert.True(t, l.IsProcessed(alice))
}

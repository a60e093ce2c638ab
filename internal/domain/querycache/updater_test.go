package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widgetPage() Paginated {
	return Paginated{
		Data:       []Record{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}},
		Total:      2,
		TotalPages: 1,
	}
}

func TestMergeByID(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := MergeByID(1, Record{"name": "z", "id": 99}, now)

	t.Run("merges matching list item only", func(t *testing.T) {
		page := u.Apply(widgetPage()).(Paginated)
		assert.Equal(t, "z", page.Data[0]["name"])
		assert.Equal(t, 1, page.Data[0]["id"], "id is never overwritten by the patch")
		assert.Equal(t, "2024-01-01T00:00:00Z", page.Data[0][UpdatedAtField])
		assert.Equal(t, "b", page.Data[1]["name"])
		assert.Equal(t, 2, page.Total)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := widgetPage()
		_ = u.Apply(in)
		assert.Equal(t, "a", in.Data[0]["name"])
	})

	t.Run("patches the single entity", func(t *testing.T) {
		s := u.Apply(Single{Record: Record{"id": 1, "name": "a"}}).(Single)
		assert.Equal(t, "z", s.Record["name"])
	})

	t.Run("leaves another entity alone", func(t *testing.T) {
		s := u.Apply(Single{Record: Record{"id": 3, "name": "c"}}).(Single)
		assert.Equal(t, "c", s.Record["name"])
	})

	t.Run("unknown entries pass through", func(t *testing.T) {
		raw := Unknown{Raw: []any{"x"}}
		assert.Equal(t, raw, u.Apply(raw))
	})
}

func TestRemoveByID(t *testing.T) {
	t.Run("removes item and decrements total", func(t *testing.T) {
		page := RemoveByID(2).Apply(widgetPage()).(Paginated)
		require.Len(t, page.Data, 1)
		_, found := page.FindByID(2)
		assert.False(t, found)
		assert.Equal(t, 1, page.Total)
	})

	t.Run("total floors at zero", func(t *testing.T) {
		page := RemoveByID(1).Apply(Paginated{Data: []Record{{"id": 1}}, Total: 0}).(Paginated)
		assert.Empty(t, page.Data)
		assert.Equal(t, 0, page.Total)
	})

	t.Run("single entities are not transformed", func(t *testing.T) {
		s := Single{Record: Record{"id": 2}}
		assert.Equal(t, s, RemoveByID(2).Apply(s))
	})
}

func TestReplaceByID(t *testing.T) {
	server := Record{"id": 1, "name": "b", "updated_at": "2024-01-01"}
	page := ReplaceByID(server).Apply(widgetPage()).(Paginated)

	assert.Equal(t, server, page.Data[0])
	assert.Equal(t, "b", page.Data[1]["name"])

	t.Run("record without id changes nothing", func(t *testing.T) {
		assert.True(t, ReplaceByID(Record{"name": "x"}).IsZero())
	})
}

func TestSetFieldByID(t *testing.T) {
	u := SetFieldByID(2, "status", "returned", time.Now())
	page := u.Apply(widgetPage()).(Paginated)

	assert.Equal(t, "returned", page.Data[1]["status"])
	assert.Nil(t, page.Data[0]["status"])
}

package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func node(id, parentID string, kind Kind, pos int) Node {
	return Node{ID: id, ParentID: parentID, Kind: kind, Title: id, Position: pos, CreatedAt: time.Unix(0, 0)}
}

func sampleIndex() *Index {
	return NewIndex([]Node{
		node("math", "", KindGoal, 0),
		node("algebra", "math", KindStream, 1),
		node("geometry", "math", KindStream, 0),
		node("linear", "algebra", KindSubject, 0),
		node("matrices", "linear", KindChapter, 0),
		node("history", "", KindGoal, 1),
	})
}

func TestKindHierarchy(t *testing.T) {
	assert.True(t, KindProject.CanBeRoot())
	assert.True(t, KindGoal.CanBeRoot())
	assert.False(t, KindStream.CanBeRoot())

	_, ok := KindProject.ParentKind()
	assert.False(t, ok)
	parent, ok := KindChapter.ParentKind()
	assert.True(t, ok)
	assert.Equal(t, KindSubject, parent)

	child, ok := KindGoal.ChildKind()
	assert.True(t, ok)
	assert.Equal(t, KindStream, child)
	_, ok = KindTopic.ChildKind()
	assert.False(t, ok)

	assert.False(t, Kind("semester").Valid())
}

func TestIndex(t *testing.T) {
	idx := sampleIndex()

	t.Run("Children", func(t *testing.T) {
		var titles []string
		for _, n := range idx.Children("math") {
			titles = append(titles, n.Title)
		}
		assert.Equal(t, []string{"geometry", "algebra"}, titles)
		assert.Len(t, idx.Children(""), 2)
		assert.Empty(t, idx.Children("matrices"))
	})

	t.Run("Subtree", func(t *testing.T) {
		assert.Equal(t, []string{"math", "geometry", "algebra", "linear", "matrices"}, idx.Subtree("math"))
		assert.Equal(t, []string{"matrices"}, idx.Subtree("matrices"))
		assert.Nil(t, idx.Subtree("unknown"))
	})

	t.Run("IsDescendant", func(t *testing.T) {
		assert.True(t, idx.IsDescendant("matrices", "math"))
		assert.True(t, idx.IsDescendant("linear", "algebra"))
		assert.False(t, idx.IsDescendant("math", "matrices"))
		assert.False(t, idx.IsDescendant("geometry", "algebra"))
		assert.False(t, idx.IsDescendant("history", "math"))
	})

	t.Run("Ancestors", func(t *testing.T) {
		var ids []string
		for _, n := range idx.Ancestors("matrices") {
			ids = append(ids, n.ID)
		}
		assert.Equal(t, []string{"math", "algebra", "linear"}, ids)
		assert.Empty(t, idx.Ancestors("math"))
	})

	t.Run("AncestorOfKind", func(t *testing.T) {
		n, ok := idx.AncestorOfKind("matrices", KindStream)
		assert.True(t, ok)
		assert.Equal(t, "algebra", n.ID)

		n, ok = idx.AncestorOfKind("linear", KindSubject)
		assert.True(t, ok, "a node is its own ancestor of its kind")
		assert.Equal(t, "linear", n.ID)

		_, ok = idx.AncestorOfKind("geometry", KindChapter)
		assert.False(t, ok)
		_, ok = idx.AncestorOfKind("", KindGoal)
		assert.False(t, ok)
	})
}

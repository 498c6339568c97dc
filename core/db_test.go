package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrdering(t *testing.T) {
	got := ParseOrdering(" name, -created_at,,-")
	assert.Equal(t, []DBOrdering{
		{Field: "name", Ascending: true},
		{Field: "created_at", Ascending: false},
	}, got)
	assert.Nil(t, ParseOrdering(""))
}

func TestAllowedOrderings(t *testing.T) {
	columns := map[string]string{"name": "title", "created_at": "created_at"}
	got := AllowedOrderings(ParseOrdering("name,-password_hash,-created_at"), columns)
	assert.Equal(t, []DBOrdering{
		{Field: "title", Ascending: true},
		{Field: "created_at", Ascending: false},
	}, got)
	assert.Equal(t, "title ASC", got[0].String())
	assert.Equal(t, "created_at DESC", got[1].String())
}

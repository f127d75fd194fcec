package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/crosscheck-cli/internal/model"
)

func TestCheckColumns(t *testing.T) {
	mappings := model.NewMappingSet([]model.FieldMapping{
		{Source: "company_name", Selector: "h1"},
		{Source: "phone", Selector: ".phone"},
	})
	header := []string{"id", "company_name", "phone"}

	assert.NoError(t, checkColumns("https://x.com/c/{id}", mappings, header))

	err := checkColumns("https://x.com/c/{slug}", mappings, header)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "slug"`)

	short := []string{"id", "company_name"}
	err = checkColumns("https://x.com/c/{id}", mappings, short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "phone"`)
}

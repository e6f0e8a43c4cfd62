package paging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradoc/internal/apperror"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	tests := []struct {
		name      string
		page      int
		size      int
		want      []int
		pages     int
		next, prv bool
	}{
		{"first", 0, 3, []int{1, 2, 3}, 3, true, false},
		{"middle", 1, 3, []int{4, 5, 6}, 3, true, true},
		{"last partial", 2, 3, []int{7}, 3, false, true},
		{"past end", 5, 3, []int{}, 3, false, true},
		{"everything", 0, 100, items, 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Paginate(items, tt.page, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Items)
			assert.Equal(t, 7, p.TotalItems)
			assert.Equal(t, tt.pages, p.TotalPages)
			assert.Equal(t, tt.next, p.HasNext)
			assert.Equal(t, tt.prv, p.HasPrevious)
		})
	}
}

func TestPaginateEmpty(t *testing.T) {
	p, err := Paginate([]string(nil), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
}

func TestValidateListsEveryViolation(t *testing.T) {
	err := Validate(-1, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidationFailed))
	assert.True(t, apperror.HasViolation(err, "page.negative"))
	assert.True(t, apperror.HasViolation(err, "page.size_min"))

	err = Validate(0, 101)
	assert.True(t, apperror.HasViolation(err, "page.size_max"))

	assert.NoError(t, Validate(0, 1))
	assert.NoError(t, Validate(3, 100))
}

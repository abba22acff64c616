package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDefaults(t *testing.T) {
	cases := []struct {
		page, limit string
		want        Request
	}{
		{"", "", Request{Page: 1, Limit: 10}},
		{"abc", "-5", Request{Page: 1, Limit: 10}},
		{"0", "0", Request{Page: 1, Limit: 10}},
		{"3", "25", Request{Page: 3, Limit: 25}},
		{" 2 ", "1.5", Request{Page: 2, Limit: 10}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(tc.page, tc.limit), "page=%q limit=%q", tc.page, tc.limit)
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Request{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, Request{Page: 3, Limit: 10}.Offset())
}

func TestNewPageTotalPages(t *testing.T) {
	page := NewPage(Request{Page: 3, Limit: 10}, 25, []int{1, 2, 3, 4, 5})
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.TotalItems)
	assert.Equal(t, 10, page.PerPage)
	assert.Len(t, page.Data, 5)

	empty := NewPage[int](Request{Page: 1, Limit: 10}, 0, nil)
	assert.Equal(t, 0, empty.TotalPages)
	assert.NotNil(t, empty.Data)
}

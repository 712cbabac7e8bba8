package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dosync/pkg/errors"
)

type testItem struct {
	ID int
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		register string
		wantCode errors.ErrorCode
	}{
		{name: "valid name", register: "rsync"},
		{name: "empty name", register: "", wantCode: errors.ErrInvalidInput},
		{name: "blank name", register: "  ", wantCode: errors.ErrInvalidInput},
		{name: "duplicate", register: "existing", wantCode: errors.ErrInternal},
		{name: "duplicate in other case", register: "EXISTING", wantCode: errors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New[testItem]()
			require.NoError(t, reg.Register("existing", testItem{ID: 0}))

			err := reg.Register(tt.register, testItem{ID: 1})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			assert.True(t, errors.IsErrorCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestGet(t *testing.T) {
	reg := New[testItem]()
	MustRegister(reg, "SFTP", testItem{ID: 7})

	item, err := reg.Get("sftp")
	require.NoError(t, err)
	assert.Equal(t, 7, item.ID)
	assert.True(t, reg.Has("Sftp"))

	_, err = reg.Get("ftp")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	assert.Equal(t, "ftp", errors.GetErrorDetails(err)["name"])
	assert.False(t, reg.Has("ftp"))
}

func TestList(t *testing.T) {
	reg := New[testItem]()
	assert.Empty(t, reg.List())

	for i, name := range []string{"sftp", "rsync", "scp"} {
		MustRegister(reg, name, testItem{ID: i})
	}
	assert.Equal(t, []string{"rsync", "scp", "sftp"}, reg.List())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := New[testItem]()
	MustRegister(reg, "rsync", testItem{})
	assert.Panics(t, func() { MustRegister(reg, "rsync", testItem{}) })
}

func TestConcurrentAccess(t *testing.T) {
	reg := New[testItem]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("item%d", i)
			assert.NoError(t, reg.Register(name, testItem{ID: i}))
			item, err := reg.Get(name)
			assert.NoError(t, err)
			assert.Equal(t, i, item.ID)
		}(i)
	}
	wg.Wait()
	assert.Len(t, reg.List(), 20)
}

package variables

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
)

func TestResolve_CaseInsensitiveRoundTrip(t *testing.T) {
	s := NewStore()
	s.Put("HostName", "db01.internal")

	for _, variant := range []string{"HostName", "hostname", "HOSTNAME", "hOsTnAmE"} {
		got, err := s.Resolve(fmt.Sprintf("jdbc://${%s}:5432", variant))
		require.NoError(t, err)
		assert.Equal(t, "jdbc://db01.internal:5432", got)
	}
}

func TestResolve_EmptySourcePassesThrough(t *testing.T) {
	s := NewStore()
	got, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestResolve_NoPlaceholdersPassesThrough(t *testing.T) {
	s := NewStore()
	got, err := s.Resolve("select 1 from dual")
	require.NoError(t, err)
	assert.Equal(t, "select 1 from dual", got)
}

func TestResolve_UnresolvedPlaceholderFails(t *testing.T) {
	s := NewStore()
	s.Put("known", "v")

	_, err := s.Resolve("${known}/${missing}")
	require.Error(t, err)
	assert.True(t, sdkerrors.IsVariable(err))
	assert.Contains(t, err.Error(), "${missing}")
}

func TestResolve_BlankValueIsNotSubstituted(t *testing.T) {
	// A placeholder resolving to an empty string stays in place and
	// fails resolution, rather than silently erasing the token.
	s := NewStore()
	s.Put("empty", "")

	_, err := s.Resolve("prefix-${empty}")
	require.Error(t, err)
	assert.True(t, sdkerrors.IsVariable(err))
}

func TestResolve_MultiplePlaceholders(t *testing.T) {
	s := NewStore()
	s.Put("user", "argus")
	s.Put("env", "uat")

	got, err := s.Resolve("${user}@${env} via ${USER}")
	require.NoError(t, err)
	assert.Equal(t, "argus@uat via argus", got)
}

func TestPut_LastWriterWins(t *testing.T) {
	s := NewStore()
	s.Put("name", "first")
	s.Put("NAME", "second")

	v, ok := s.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "second", v.Value)
}

func TestTable_OnlyReturnsTabularKind(t *testing.T) {
	s := NewStore()
	s.Put("simple", "v")
	s.PutTable("rows", []map[string]string{{"col": "a"}, {"col": "b"}})

	_, ok := s.Table("simple")
	assert.False(t, ok)

	v, ok := s.Table("rows")
	require.True(t, ok)
	assert.Len(t, v.Table, 2)

	// Tabular variables never substitute into placeholders.
	_, err := s.Resolve("${rows}")
	assert.Error(t, err)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	s := NewStore()
	s.Put("shared", "seed")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Put(fmt.Sprintf("writer-%d", n), "value")
			s.Put("shared", fmt.Sprintf("gen-%d", n))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.Resolve("${shared}")
		}()
	}
	wg.Wait()

	v, ok := s.Get("shared")
	require.True(t, ok)
	assert.NotEmpty(t, v.Value)
}

func TestFlattenEnvironment(t *testing.T) {
	env := map[string]any{
		"region": "eu-west",
		"db": map[string]any{
			"host": "db01",
			"port": 5432,
		},
	}

	s := NewStore()
	s.PutAll(FlattenEnvironment(env))

	got, err := s.Resolve("${region} ${db.host}:${DB.PORT}")
	require.NoError(t, err)
	assert.Equal(t, "eu-west db01:5432", got)
}

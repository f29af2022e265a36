package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "dia,estado\n1,sol\n2, nublado\n3,lluvia\n"

	obs, err := ReadCSV(strings.NewReader(input), DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, []markov.Observation{
		{Day: 1, State: "sol"},
		{Day: 2, State: "nublado"},
		{Day: 3, State: "lluvia"},
	}, obs)
}

func TestReadCSVHeaderHandling(t *testing.T) {
	t.Run("columns in any order with extras", func(t *testing.T) {
		input := "estacion,estado,dia\nnorte,sol,5\nnorte,lluvia,4\n"
		obs, err := ReadCSV(strings.NewReader(input), Columns{})
		require.NoError(t, err)
		assert.Equal(t, []markov.Observation{{Day: 5, State: "sol"}, {Day: 4, State: "lluvia"}}, obs)
	})

	t.Run("english header accepted", func(t *testing.T) {
		obs, err := ReadCSV(strings.NewReader("Day,State\n1,sun\n"), DefaultColumns())
		require.NoError(t, err)
		assert.Equal(t, []markov.Observation{{Day: 1, State: "sun"}}, obs)
	})

	t.Run("byte order mark", func(t *testing.T) {
		obs, err := ReadCSV(strings.NewReader("\ufeffdia,estado\n1,sol\n"), DefaultColumns())
		require.NoError(t, err)
		assert.Len(t, obs, 1)
	})

	t.Run("custom columns", func(t *testing.T) {
		cols := Columns{Day: "n", State: "cielo"}
		obs, err := ReadCSV(strings.NewReader("n,cielo\n7,despejado\n"), cols)
		require.NoError(t, err)
		assert.Equal(t, []markov.Observation{{Day: 7, State: "despejado"}}, obs)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("dia,temperatura\n1,20\n"), DefaultColumns())
		assert.ErrorIs(t, err, ErrMissingColumn)
	})
}

func TestReadCSVEmptyInput(t *testing.T) {
	obs, err := ReadCSV(strings.NewReader(""), DefaultColumns())
	require.NoError(t, err)
	assert.Empty(t, obs)

	obs, err = ReadCSV(strings.NewReader("dia,estado\n"), DefaultColumns())
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestReadCSVMalformedRecords(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		line  string
	}{
		{name: "non-integer day", input: "dia,estado\n1,sol\nmartes,lluvia\n", line: "line 3"},
		{name: "empty state", input: "dia,estado\n1,sol\n2,  \n", line: "line 3"},
		{name: "short record", input: "dia,estado\n1\n", line: "line 2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.input), DefaultColumns())
			require.ErrorIs(t, err, ErrMalformedRecord)
			assert.Contains(t, err.Error(), tc.line)
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	obs := []markov.Observation{{Day: 1, State: "sol"}, {Day: 2, State: "lluvia, fuerte"}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, obs, DefaultColumns()))
	assert.True(t, strings.HasPrefix(buf.String(), "dia,estado\n"))
	assert.Contains(t, buf.String(), `"lluvia, fuerte"`)

	got, err := ReadCSV(&buf, DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, obs, got)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datos.csv")
	obs := []markov.Observation{{Day: 1, State: "sol"}, {Day: 2, State: "nublado"}}

	require.NoError(t, WriteFile(path, obs, DefaultColumns()))
	// Overwrite to make sure the atomic replace works on an existing file.
	require.NoError(t, WriteFile(path, obs[:1], DefaultColumns()))

	got, err := (&FileSource{Path: path}).Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, obs[:1], got)
}

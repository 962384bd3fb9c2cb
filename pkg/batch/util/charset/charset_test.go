package charset_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/autobatch/pkg/batch/util/charset"
)

func TestLookup(t *testing.T) {
	enc, err := charset.Lookup("UTF-8")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = charset.Lookup("")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = charset.Lookup("Shift_JIS")
	require.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = charset.Lookup("no-such-charset")
	assert.Error(t, err)
}

func TestEncodeDecodeShiftJIS(t *testing.T) {
	enc, err := charset.Lookup("Shift_JIS")
	require.NoError(t, err)

	encoded, err := charset.Encode([]byte("東京,大阪\n"), enc)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("東京,大阪\n"), encoded)

	decoded, err := io.ReadAll(charset.NewReader(bytes.NewReader(encoded), enc))
	require.NoError(t, err)
	assert.Equal(t, "東京,大阪\n", string(decoded))
}

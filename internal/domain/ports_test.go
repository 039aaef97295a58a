package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordNumbers(t *testing.T) {
	rec := Record{
		"i64":   int64(7),
		"i32":   int32(3),
		"f":     2.6,
		"big":   big.NewInt(12),
		"bytes": []byte("42"),
		"null":  nil,
		"text":  "dedupe",
	}

	for key, want := range map[string]int64{"i64": 7, "i32": 3, "f": 3, "big": 12, "bytes": 42, "null": 0} {
		got, err := rec.Int64(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	f, err := rec.Float64("i32")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
	f, err = rec.Float64("f")
	require.NoError(t, err)
	assert.Equal(t, 2.6, f)

	_, err = rec.Int64("missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = rec.Int64("text")
	assert.Error(t, err)
	assert.Equal(t, "dedupe", rec.String("text"))
	assert.Equal(t, "42", rec.String("bytes"))
	assert.Equal(t, "7", rec.String("i64"))
}

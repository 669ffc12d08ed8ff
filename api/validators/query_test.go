package validators

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/wdir-license-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=40&bad=x&big=500", nil)

	n, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	n, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "big", 25, 1, 100)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "big", details["field"])
	assert.Equal(t, 100, details["max"])
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?flagged=true&off=0&bad=maybe", nil)

	v, err := ParseQueryBool(req, "flagged", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(req, "off", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = ParseQueryBool(req, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = ParseQueryBool(req, "bad", false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abc  ", 10))
	assert.Equal(t, "ab", SanitizeString("abcdef", 2))
	assert.Equal(t, "caf", SanitizeString("café", 4))
	assert.Equal(t, "unbounded", SanitizeString(" unbounded ", 0))
}

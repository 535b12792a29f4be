package zapform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "slaledger/internal/platform/errors"
)

func scriptedLogin(refuse ...string) (LoginFunc, *[]string) {
	var calls []string
	bad := map[string]bool{}
	for _, u := range refuse {
		bad[u] = true
	}
	return func(_ context.Context, c Credential) (string, error) {
		calls = append(calls, c.Username)
		if bad[c.Username] {
			return "", errors.New("refused")
		}
		return "tok-" + c.Username, nil
	}, &calls
}

func TestParseCredentials(t *testing.T) {
	got := ParseCredentials(" a:1, b:p:w ,broken, :x,c:")
	assert.Equal(t, []Credential{{"a", "1"}, {"b", "p:w"}, {"c", ""}}, got)
	assert.Empty(t, ParseCredentials(""))
}

func TestRotation_EverySuccesses(t *testing.T) {
	login, calls := scriptedLogin()
	r := NewRotation([]Credential{{"a", ""}, {"b", ""}}, 3, login)
	ctx := context.Background()

	tok, err := r.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", tok)

	r.Success(ctx)
	r.Success(ctx)
	assert.Equal(t, "a", r.Current())
	r.Success(ctx)
	assert.Equal(t, "b", r.Current())

	tok, _ = r.Token(ctx)
	assert.Equal(t, "tok-b", tok)
	assert.Equal(t, []string{"a", "b"}, *calls)
}

func TestRotation_FailSkipsRefusedLogins(t *testing.T) {
	login, calls := scriptedLogin("b")
	rotated := 0
	r := NewRotation([]Credential{{"a", ""}, {"b", ""}, {"c", ""}}, 0, login)
	r.OnRotate = func(from, to string) {
		rotated++
		assert.Equal(t, "a", from)
		assert.Equal(t, "c", to)
	}
	ctx := context.Background()

	tok, _ := r.Token(ctx)
	r.Fail(ctx, tok, "429")
	assert.Equal(t, "c", r.Current())
	assert.Equal(t, 1, rotated)
	assert.Equal(t, []string{"a", "b", "c"}, *calls)

	// a stale token from a concurrent failure does not rotate again
	r.Fail(ctx, tok, "429")
	assert.Equal(t, "c", r.Current())
	assert.Equal(t, 1, rotated)
}

func TestRotation_NoUsableLogin(t *testing.T) {
	login, _ := scriptedLogin("a", "b")
	r := NewRotation([]Credential{{"a", ""}, {"b", ""}}, 0, login)

	_, err := r.Token(context.Background())
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnauthorized))
}

func TestRotation_Anonymous(t *testing.T) {
	r := NewRotation(nil, 0, nil)
	tok, err := r.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
	r.Success(context.Background())
	r.Fail(context.Background(), "", "x")
	assert.Empty(t, r.Current())
}

package children

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver([]Child{
		{Name: "Jakub", Aliases: []string{"Kuba", "Kubuś"}, Login: "1234567u", Password: "secret"},
		{Name: "Anna Maria", Aliases: []string{"Ania"}},
	})
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := testResolver(t)

	tests := []struct {
		in   string
		want string
	}{
		{"Jakub", "Jakub"},
		{"jakub", "Jakub"},
		{"Kuba", "Jakub"},
		{"kuba", "Jakub"},
		{" KUBA ", "Jakub"},
		{"kubuś", "Jakub"},
		{"ania", "Anna Maria"},
		{"Zosia", "Zosia"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := r.Resolve(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, r.Resolve(got), "resolve must be idempotent")
		})
	}
}

func TestAliasesShareNamespace(t *testing.T) {
	r := testResolver(t)

	ns := r.Namespace("Jakub")
	assert.Equal(t, "jakub", ns)
	assert.Equal(t, ns, r.Namespace("Kuba"))
	assert.Equal(t, ns, r.Namespace("kuba"))
	assert.Equal(t, "anna-maria", r.Namespace("Ania"))
}

func TestLookupAndCredentials(t *testing.T) {
	r := testResolver(t)

	child, err := r.Lookup("kuba")
	require.NoError(t, err)
	assert.Equal(t, "Jakub", child.Name)

	_, err = r.Lookup("Zosia")
	assert.True(t, errors.Is(err, ErrUnknownChild))

	creds, err := r.Credentials("Kuba")
	require.NoError(t, err)
	assert.Equal(t, "1234567u", creds.Login)

	_, err = r.Credentials("Ania")
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestNewResolverValidation(t *testing.T) {
	_, err := NewResolver(nil)
	assert.True(t, errors.Is(err, ErrNoChildren))

	_, err = NewResolver([]Child{{Name: ""}})
	assert.Error(t, err)

	_, err = NewResolver([]Child{
		{Name: "Jakub", Aliases: []string{"Kuba"}},
		{Name: "Kuba"},
	})
	assert.Error(t, err)
}

func TestListIsACopy(t *testing.T) {
	r := testResolver(t)
	list := r.List()
	list[0].Name = "changed"
	assert.Equal(t, "Jakub", r.List()[0].Name)
}

package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
)

type batchBody struct {
	SellerIDs []uuid.UUID `json:"seller_ids" validate:"omitempty,max=2,unique"`
	Force     bool        `json:"force"`
}

func decode(body string) (batchBody, error) {
	var dest batchBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &dest)
	return dest, err
}

func TestDecodeJSONBody(t *testing.T) {
	id := uuid.New()

	got, err := decode(`{"seller_ids":["` + id.String() + `"],"force":true}`)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, got.SellerIDs)
	assert.True(t, got.Force)

	cases := map[string]string{
		"empty":     ``,
		"unknown":   `{"sellers":[]}`,
		"trailing":  `{"force":true}{"force":false}`,
		"duplicate": `{"seller_ids":["` + id.String() + `","` + id.String() + `"]}`,
		"too many":  `{"seller_ids":["` + uuid.NewString() + `","` + uuid.NewString() + `","` + uuid.NewString() + `"]}`,
		"oversized": `{"seller_ids":["` + strings.Repeat("a", MaxBodyBytes) + `"]}`,
	}
	for name, body := range cases {
		_, err := decode(body)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	id := uuid.NewString()
	_, err := decode(`{"seller_ids":["` + id + `","` + id + `"]}`)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must not contain duplicates", details["seller_ids"])
}

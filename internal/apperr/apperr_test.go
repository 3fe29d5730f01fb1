package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aifoundry/aifoundry/server/internal/apperr"
)

type notFound struct{}

func (notFound) Error() string { return "gone" }
func (notFound) ErrKind() apperr.Kind { return apperr.KindNotFound }

func TestKindOfWrapped(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("resolve: %w", apperr.InvalidConfiguration("provider %s: %w", "openai", base))

	assert.Equal(t, apperr.KindInvalidConfiguration, apperr.KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, http.StatusPreconditionFailed, apperr.HTTPStatus(err))
}

func TestKindOfForeignClassified(t *testing.T) {
	err := fmt.Errorf("load: %w", notFound{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("x")))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("x")))
	assert.False(t, apperr.Is(nil, apperr.KindInternal))
	assert.Nil(t, apperr.Wrap(apperr.KindNotFound, "x", nil))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(apperr.InvalidRequest("bad")))
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(apperr.InvalidOperation("no")))
	assert.Equal(t, "bad uri", apperr.InvalidRequest("bad %s", "uri").Error())
}

package errors

import (
	stderrors "errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsCodeOfWrappedAppError(t *testing.T) {
	base := NotFound("encoding file for 05_EmCon")
	err := Wrap(base, "process subject")

	assert.Equal(t, CodeNotFound, GetCode(err))
	assert.Equal(t, "process subject: encoding file for 05_EmCon not found", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrap_ForeignErrorBecomesInternal(t *testing.T) {
	err := Wrapf(fs.ErrNotExist, "open %s", "x.csv")

	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Nil(t, Wrapf(nil, "nothing %d", 1))
	assert.Nil(t, WithCode(CodeIOError, nil))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeDataIntegrity, stderrors.New("hits != K + R"))

	assert.True(t, HasCode(err, CodeDataIntegrity))
	assert.True(t, IsAppError(err))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestIOError(t *testing.T) {
	err := IOError("/tmp/a.csv", fs.ErrPermission)

	assert.Equal(t, CodeIOError, err.Code)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), "/tmp/a.csv")
}

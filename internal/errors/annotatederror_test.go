package errors_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/myrjola/taleweaver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotatedError_Wrap(t *testing.T) {
	sentinel := errors.NewSentinel("session not found")
	err := errors.Wrap(sentinel, "get session", slog.String("session_id", "abc"))

	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, "get session: session not found", err.Error())
}

func TestAnnotatedError_LogValue(t *testing.T) {
	err := errors.New("boom", slog.String("key", "value"))

	var annotated errors.AnnotatedError
	require.True(t, errors.As(err, &annotated))

	value := annotated.LogValue()
	require.Equal(t, slog.KindGroup, value.Kind())

	var sawSource, sawAttr bool
	for _, attr := range value.Group() {
		switch attr.Key {
		case "source":
			// The source should point to this test file.
			sawSource = strings.Contains(attr.Value.String(), "annotatederror_test.go")
		case "key":
			sawAttr = attr.Value.String() == "value"
		}
	}
	assert.True(t, sawSource, "expected source attribute pointing to this file")
	assert.True(t, sawAttr, "expected custom attribute to be preserved")
}

func TestAnnotatedError_NestedWrap(t *testing.T) {
	inner := errors.NewSentinel("collaborator unavailable")
	err := errors.Wrap(errors.Wrap(inner, "generate image"), "dispatch tool call")

	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, "dispatch tool call: generate image: collaborator unavailable", err.Error())
}

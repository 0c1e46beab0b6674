package cli_test

import (
	"bytes"
	"testing"

	"github.com/book-expert/songgen/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, cli.PrintJSON(&buf, map[string]any{"credits_left": 50}))
	assert.Equal(t, "{\n  \"credits_left\": 50\n}\n", buf.String())
}

func TestPrintJSON_Unencodable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.Error(t, cli.PrintJSON(&buf, make(chan int)))
}

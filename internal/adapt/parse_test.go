// File: internal/adapt/parse_test.go
package adapt

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseTarget struct {
	Kind       string  `json:"kind"`
	Expression string  `json:"expression"`
	Prior      float64 `json:"prior"`
}

func TestParseJSONResponse_PlainArray(t *testing.T) {
	out, err := ParseJSONResponse[[]parseTarget](`[{"kind":"css","expression":"#x","prior":0.8}]`)
	require.NoError(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, "#x", (*out)[0].Expression)
}

func TestParseJSONResponse_MarkdownFencedArray(t *testing.T) {
	response := "```json\n[{\"kind\":\"text\",\"expression\":\"Add User\",\"prior\":0.7}]\n```"
	out, err := ParseJSONResponse[[]parseTarget](response)
	require.NoError(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, "Add User", (*out)[0].Expression)
}

func TestParseJSONResponse_MarkdownFencedObject(t *testing.T) {
	response := "```\n{\"kind\":\"css\",\"expression\":\".btn\",\"prior\":0.6}\n```"
	out, err := ParseJSONResponse[parseTarget](response)
	require.NoError(t, err)
	assert.Equal(t, ".btn", out.Expression)
}

func TestParseJSONResponse_ConversationalWrapper(t *testing.T) {
	response := `Here are the locators you asked for: [{"kind":"css","expression":"#add","prior":0.9}] Good luck!`
	out, err := ParseJSONResponse[[]parseTarget](response)
	require.NoError(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, "#add", (*out)[0].Expression)
}

func TestParseJSONResponse_InvalidJSON(t *testing.T) {
	_, err := ParseJSONResponse[[]parseTarget]("not json at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestParseJSONResponse_ErrorTruncatesLongInput(t *testing.T) {
	long := "{" + string(make([]byte, 2000))
	_, err := ParseJSONResponse[parseTarget](long)
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 1000)
}

// FuzzParseJSONResponse checks the parser never panics on arbitrary model
// output.
func FuzzParseJSONResponse(f *testing.F) {
	f.Add([]byte(`[{"kind":"css","expression":"#x","prior":0.8}]`))
	f.Add([]byte("```json\n[]\n```"))
	f.Add([]byte("some text { partial"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		s, err := consumer.GetString()
		if err != nil {
			return
		}
		_, _ = ParseJSONResponse[[]parseTarget](s)
		_, _ = ParseJSONResponse[parseTarget](s)
	})
}

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/callspec/packages/core/env"
)

func run(t *testing.T, bundle Bundle, lines ...string) (*Result, error) {
	t.Helper()
	c, err := NewExprExecutor().NewContext(bundle)
	require.NoError(t, err)
	defer c.Dispose()
	return c.Execute(context.Background(), lines)
}

func TestExecuteEnvironmentFunctions(t *testing.T) {
	bundle := Bundle{
		Environment: []env.Item{{Type: env.ItemType, Key: "amount", Value: "100"}},
		Response:    map[string]any{"code": 200, "body": map[string]any{"quoteId": "q-1"}},
	}

	result, err := run(t, bundle,
		"// store the quote",
		`environment.set("quoteId", response.body.quoteId);`,
		"",
		`environment.set("doubled", int(environment.get("amount")) * 2)`,
		`environment.unset("amount")`,
		`console.log("quote", environment.get("quoteId"), environment.has("amount"))`,
	)
	require.NoError(t, err)

	e := env.New()
	e.Replace(result.Environment)
	quoteID, _ := e.Get("quoteId")
	assert.Equal(t, "q-1", quoteID)
	doubled, _ := e.Get("doubled")
	assert.Equal(t, 200, doubled)
	_, ok := e.Get("amount")
	assert.False(t, ok)
	assert.Equal(t, []string{"quote q-1 false"}, result.Console)
}

func TestExecuteStopsAtFirstError(t *testing.T) {
	result, err := run(t, Bundle{},
		`environment.set("a", 1)`,
		`undefinedThing.call()`,
		`environment.set("b", 2)`,
	)
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, 2, scriptErr.Line)

	// state up to the failing line is kept
	require.Len(t, result.Environment, 1)
	assert.Equal(t, "a", result.Environment[0].Key)
}

func TestExecuteCompileError(t *testing.T) {
	_, err := run(t, Bundle{}, `environment.set(`)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, 1, scriptErr.Line)
}

func TestExecutePlainEnvironment(t *testing.T) {
	bundle := Bundle{
		Environment:      []env.Item{{Type: env.ItemType, Key: "transferId", Value: "t-1"}},
		Callback:         map[string]any{"body": map[string]any{"transferId": "t-1"}},
		PlainEnvironment: true,
	}
	_, err := run(t, bundle, `expect(callback.body.transferId).to.equal(environment.transferId)`)
	assert.NoError(t, err)
}

func TestExecuteDisposed(t *testing.T) {
	c, err := NewExprExecutor().NewContext(Bundle{})
	require.NoError(t, err)
	c.Dispose()

	_, err = c.Execute(context.Background(), []string{"1 + 1"})
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestProgramCacheIsBounded(t *testing.T) {
	x := NewExprExecutor(WithProgramCacheSize(2))
	c, err := x.NewContext(Bundle{})
	require.NoError(t, err)
	defer c.Dispose()

	for i := 0; i < 10; i++ {
		_, err := c.Execute(context.Background(), []string{fmt.Sprintf(`environment.set("id", "%d")`, i)})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, x.CachedPrograms())

	_, err = c.Execute(context.Background(), []string{`environment.set("id", "9")`})
	require.NoError(t, err)
	assert.Equal(t, 2, x.CachedPrograms())

	assert.Equal(t, 0, NewExprExecutor(WithProgramCacheSize(0)).CachedPrograms())
}

func TestExecuteCancelledContext(t *testing.T) {
	c, err := NewExprExecutor().NewContext(Bundle{})
	require.NoError(t, err)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Execute(ctx, []string{"1 + 1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteUUIDAndHistory(t *testing.T) {
	bundle := Bundle{
		RequestsHistory: []any{map[string]any{"url": "/quotes"}},
	}
	result, err := run(t, bundle,
		`environment.set("id", uuid())`,
		`expect(requestsHistory).to.have.lengthOf(1)`,
	)
	require.NoError(t, err)
	require.Len(t, result.Environment, 1)
	assert.Len(t, result.Environment[0].Value, 36)
}

func TestExpect(t *testing.T) {
	bundle := Bundle{
		Response: map[string]any{
			"status": float64(202),
			"body":   map[string]any{"status": "fail", "items": []any{"a", "b"}, "amount": float64(10)},
		},
	}

	tests := []struct {
		name    string
		line    string
		message string
	}{
		{"equal passes", `expect(response.status).to.equal(202)`, ""},
		{"equal fails", `expect(response.body.status).to.equal('ok')`, "expected 'fail' to equal 'ok'"},
		{"not equal", `expect(response.body.status).to.not.equal('ok')`, ""},
		{"not equal fails", `expect(response.body.status).not.to.equal('fail')`, "expected 'fail' to not equal 'fail'"},
		{"eql", `expect(response.body.items).to.eql(["a", "b"])`, ""},
		{"deep equal", `expect(response.body.items).to.deep.equal(["a", "b"])`, ""},
		{"include array", `expect(response.body.items).to.include("b")`, ""},
		{"include string", `expect(response.body.status).to.include("ai")`, ""},
		{"include object", `expect(response.body).to.include({"status": "fail"})`, ""},
		{"include fails", `expect(response.body.items).to.include("c")`, `expected ["a","b"] to include 'c'`},
		{"above", `expect(response.body.amount).to.be.above(5)`, ""},
		{"below fails", `expect(response.body.amount).to.be.below(5)`, "expected 10 to be below 5"},
		{"above not a number", `expect(response.body.status).to.be.above(5)`, "expected 'fail' to be a number"},
		{"oneOf", `expect(response.body.status).to.be.oneOf(["ok", "fail"])`, ""},
		{"property", `expect(response.body).to.have.property("amount")`, ""},
		{"property value", `expect(response.body).to.have.property("amount", 10)`, ""},
		{"property missing", `expect(response.body).to.have.property("quoteId")`, "expected " + `{"amount":10,"items":["a","b"],"status":"fail"}` + " to have property 'quoteId'"},
		{"lengthOf", `expect(response.body.items).to.have.lengthOf(2)`, ""},
		{"type", `expect(response.body.items).to.be.an("array")`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, bundle, tt.line)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestJSONSchema(t *testing.T) {
	bundle := Bundle{Callback: map[string]any{"body": map[string]any{"quoteId": "q-1"}}}

	_, err := run(t, bundle, `jsonSchema(callback.body, {"type": "object", "required": ["quoteId"]})`)
	assert.NoError(t, err)

	_, err = run(t, bundle, `jsonSchema(callback.body, {"type": "object", "required": ["transferId"]})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON schema validation failed")
}

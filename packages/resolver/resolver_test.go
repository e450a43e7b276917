package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

func TestParse(t *testing.T) {
	tmpl := Parse("id={$inputs.a}&x={$unknown.b}&n={$function.generic.generateID}")

	placeholders := tmpl.Placeholders()
	require.Len(t, placeholders, 2)
	assert.Equal(t, ScopeInputs, placeholders[0].Scope)
	assert.Equal(t, "a", placeholders[0].Path)
	assert.Equal(t, ScopeFunction, placeholders[1].Scope)
	assert.Equal(t, "generic.generateID", placeholders[1].Path)

	assert.False(t, Parse("plain text").HasPlaceholders())
	assert.False(t, Parse("{$other.thing}").HasPlaceholders())
}

func TestResolveString(t *testing.T) {
	r := NewResolver()
	scopes := &Scopes{
		Inputs:      map[string]any{"amount": 100, "currency": "USD", "dotted.key": "yes"},
		Environment: map[string]any{"transferId": "t-1", "nested": map[string]any{"list": []any{"a", "b"}}},
	}

	tests := []struct {
		name     string
		input    string
		scopes   []Scope
		expected string
	}{
		{
			name:     "inputs",
			input:    "{$inputs.amount} {$inputs.currency}",
			scopes:   []Scope{ScopeInputs},
			expected: "100 USD",
		},
		{
			name:     "inputs keys may contain dots",
			input:    "{$inputs.dotted.key}",
			scopes:   []Scope{ScopeInputs},
			expected: "yes",
		},
		{
			name:     "disabled scope left literal",
			input:    "{$environment.transferId}",
			scopes:   []Scope{ScopeInputs},
			expected: "{$environment.transferId}",
		},
		{
			name:     "environment with bracket index",
			input:    "{$environment.nested.list[1]}",
			scopes:   []Scope{ScopeEnvironment},
			expected: "b",
		},
		{
			name:     "missing value left literal",
			input:    "x{$inputs.missing}y",
			scopes:   []Scope{ScopeInputs},
			expected: "x{$inputs.missing}y",
		},
		{
			name:     "unknown scope left literal",
			input:    "{$foo.bar}",
			scopes:   []Scope{ScopeInputs, ScopeEnvironment},
			expected: "{$foo.bar}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.ResolveString(tt.input, scopes, tt.scopes...))
		})
	}
}

func TestResolveFunctionScope(t *testing.T) {
	r := NewResolver()
	scopes := &Scopes{Inputs: map[string]any{"fromFspId": "payerfsp"}}

	got := r.ResolveString("{$function.generic.generateID}", scopes, ScopeFunction)
	assert.Len(t, got, 32)

	got = r.ResolveString("{$function.generic.inputValue(fromFspId)}", scopes, ScopeFunction)
	assert.Equal(t, "payerfsp", got)

	got = r.ResolveString("{$function.nope.missing}", scopes, ScopeFunction)
	assert.Equal(t, "{$function.nope.missing}", got)
}

func TestResolveStructuralReplacement(t *testing.T) {
	r := NewResolver()
	scopes := &Scopes{
		Inputs: map[string]any{
			"party": map[string]any{"idType": "MSISDN", "idValue": "123"},
		},
	}

	body := map[string]any{
		"payee":   "{$inputs.party}",
		"comment": "party is {$inputs.party}",
		"list":    []any{"{$inputs.party}", 7},
	}

	got := r.Resolve(body, scopes, ScopeInputs).(map[string]any)
	assert.Equal(t, map[string]any{"idType": "MSISDN", "idValue": "123"}, got["payee"])
	assert.Equal(t, `party is {"idType":"MSISDN","idValue":"123"}`, got["comment"])
	assert.Equal(t, []any{map[string]any{"idType": "MSISDN", "idValue": "123"}, 7}, got["list"])

	// input is untouched
	assert.Equal(t, "{$inputs.party}", body["payee"])
}

func TestResolvePrevScope(t *testing.T) {
	var warnings []string
	r := NewResolver()
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, format)
	})

	prev := map[string]*plan.Request{
		"1": {
			ID: "1",
			Appended: &plan.Outcome{
				Status: plan.StatusSuccess,
				Response: &plan.SyncResponse{
					Status: 200,
					Body:   map[string]any{"id": "abc"},
				},
				Callback: &plan.Callback{
					Body: map[string]any{"items": []any{map[string]any{"id": "first"}}},
				},
			},
		},
		"2": {ID: "2"},
	}
	scopes := &Scopes{Previous: prev}

	assert.Equal(t, "abc", r.ResolveString("{$prev.1.response.body.id}", scopes, ScopePrev))
	assert.Equal(t, "200", r.ResolveString("{$prev.1.response.status}", scopes, ScopePrev))
	assert.Equal(t, "first", r.ResolveString("{$prev.1.callback.body.items[0].id}", scopes, ScopePrev))
	assert.Empty(t, warnings)

	assert.Equal(t, "{$prev.2.response.body.id}", r.ResolveString("{$prev.2.response.body.id}", scopes, ScopePrev))
	assert.Equal(t, "{$prev.9.response.body}", r.ResolveString("{$prev.9.response.body}", scopes, ScopePrev))
	assert.Len(t, warnings, 2)
}

func TestResolveRequestScopeSkipsRawTemplates(t *testing.T) {
	r := NewResolver()
	scopes := &Scopes{
		Request: map[string]any{
			"headers": map[string]any{
				"FSPIOP-Source": "payerfsp",
				"Date":          "{$function.generic.curDate}",
			},
		},
	}

	assert.Equal(t, "payerfsp", r.ResolveString("{$request.headers.FSPIOP-Source}", scopes, ScopeRequest))
	assert.Equal(t, "{$request.headers.Date}", r.ResolveString("{$request.headers.Date}", scopes, ScopeRequest))
}

func TestResolveRequest(t *testing.T) {
	r := NewResolver()
	req := &plan.Request{
		ID:            "a",
		OperationPath: "/echo/{x}",
		Method:        "get",
		Params:        map[string]any{"x": "{$inputs.x}"},
		Headers:       map[string]string{"Source": "{$inputs.source}"},
	}
	scopes := &Scopes{Inputs: map[string]any{"x": 42, "source": "payerfsp"}}

	resolved, err := r.ResolveRequest(req, scopes, ScopeInputs)
	require.NoError(t, err)

	assert.Equal(t, "42", resolved.Params["x"])
	assert.Equal(t, "payerfsp", resolved.Headers["Source"])
	assert.Equal(t, "/echo/42", ResolvePath(resolved.OperationPath, resolved.Params))

	// template untouched
	assert.Equal(t, "{$inputs.x}", req.Params["x"])
}

func TestResolveRequestMalformedResult(t *testing.T) {
	r := NewResolver()
	req := &plan.Request{
		ID:      "bad",
		Method:  "post",
		Headers: map[string]string{"X-Object": "{$inputs.obj}"},
	}
	scopes := &Scopes{Inputs: map[string]any{"obj": map[string]any{"a": 1}}}

	_, err := r.ResolveRequest(req, scopes, ScopeInputs)
	require.Error(t, err)

	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "bad", resErr.RequestID)
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		params   map[string]any
		expected string
	}{
		{"single", "/parties/{Type}/{ID}", map[string]any{"Type": "MSISDN", "ID": "123"}, "/parties/MSISDN/123"},
		{"number", "/echo/{x}", map[string]any{"x": float64(42)}, "/echo/42"},
		{"missing stays literal", "/quotes/{ID}", map[string]any{}, "/quotes/{ID}"},
		{"empty stays literal", "/quotes/{ID}", map[string]any{"ID": ""}, "/quotes/{ID}"},
		{"no params", "/health", nil, "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolvePath(tt.path, tt.params))
		})
	}
}

func TestConvertBracketNotation(t *testing.T) {
	assert.Equal(t, "0.id", convertBracketNotation("[0].id"))
	assert.Equal(t, "items.0.tags.1", convertBracketNotation("items[0].tags[1]"))
	assert.Equal(t, "plain.path", convertBracketNotation("plain.path"))
}

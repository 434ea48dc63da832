package docbind

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestResolveRepeaters(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     TemplateData
		want     string
	}{
		{
			name:     "repeats block for each item",
			template: "<<add_more dependents>>{{name}};<<end:add_more>>",
			data: TemplateData{"dependents": []interface{}{
				map[string]interface{}{"name": "Alice"},
				map[string]interface{}{"name": "Bob"},
			}},
			want: "Alice;Bob;",
		},
		{
			name:     "count1 with single item",
			template: "<<add_more items>>[[count1]]Single item[[end:count1]]{{name}}<<end:add_more>>",
			data:     TemplateData{"items": []map[string]interface{}{{"name": "Only"}}},
			want:     "Single itemOnly",
		},
		{
			name:     "count1 with multiple items",
			template: "<<add_more items>>[[count1]]Single item[[end:count1]]{{name}}<<end:add_more>>",
			data:     TemplateData{"items": []map[string]interface{}{{"name": "First"}, {"name": "Second"}}},
			want:     "FirstSecond",
		},
		{
			name:     "count2 is always true",
			template: "<<add_more items>>[[count2]]Item: {{name}}[[end:count2]]<<end:add_more>>",
			data:     TemplateData{"items": []map[string]interface{}{{"name": "A"}, {"name": "B"}}},
			want:     "Item: AItem: B",
		},
		{
			name:     "common renders for the first item only",
			template: "<<add_more items>>[[common]]First: [[end:common]]{{name}}<<end:add_more>>",
			data:     TemplateData{"items": []map[string]interface{}{{"name": "A"}, {"name": "B"}, {"name": "C"}}},
			want:     "First:ABC",
		},
		{
			name:     "scalar elements are bound to value",
			template: "<<add_more tags>>{{value}},<<end:add_more>>",
			data:     TemplateData{"tags": []string{"x", "y"}},
			want:     "x,y,",
		},
		{
			name:     "index and length",
			template: "<<add_more items>>{{_index}}/{{_length}} <<end:add_more>>",
			data:     TemplateData{"items": []int{7, 8}},
			want:     "0/2 1/2 ",
		},
		{
			name:     "parent keys stay visible",
			template: "<<add_more items>>{{owner}}:{{value}} <<end:add_more>>",
			data:     TemplateData{"owner": "ann", "items": []string{"a"}},
			want:     "ann:a ",
		},
		{
			name:     "element keys shadow parent keys",
			template: "<<add_more items>>{{name}}<<end:add_more>>{{name}}",
			data:     TemplateData{"name": "root", "items": []map[string]interface{}{{"name": "child"}}},
			want:     "childroot",
		},
		{
			name:     "non-array path removes the block",
			template: "a<<add_more missing>>X<<end:add_more>>b<<add_more text>>Y<<end:add_more>>c",
			data:     TemplateData{"text": "not a list"},
			want:     "abc",
		},
		{
			name:     "empty array removes the block",
			template: "a<<add_more items>>X<<end:add_more>>b",
			data:     TemplateData{"items": []interface{}{}},
			want:     "ab",
		},
		{
			name:     "decorated path",
			template: `<<add_more ="items">>{{value}}<<end:add_more>>`,
			data:     TemplateData{"items": []string{"p", "q"}},
			want:     "pq",
		},
		{
			name:     "escaped markers",
			template: "&lt;&lt;add_more items&gt;&gt;{{value}};&lt;&lt;end:add_more&gt;&gt;",
			data:     TemplateData{"items": []string{"p", "q"}},
			want:     "p;q;",
		},
		{
			name:     "escaped quotes around the path",
			template: "&lt;&lt;add_more &quot;items&quot;&gt;&gt;{{value}}&lt;&lt;end:add_more&gt;&gt;",
			data:     TemplateData{"items": []string{"p"}},
			want:     "p",
		},
		{
			name:     "sibling repeaters",
			template: "<<add_more a>>{{value}}<<end:add_more>>-<<add_more b>>{{value}}<<end:add_more>>",
			data:     TemplateData{"a": []int{1, 2}, "b": []int{3}},
			want:     "12-3",
		},
		{
			name:     "unterminated repeater stays literal",
			template: "<<add_more items>>{{value}}",
			data:     TemplateData{"items": []string{"p"}},
			want:     "<<add_more items>>",
		},
		{
			name:     "nested path",
			template: "<<add_more order.lines>>{{sku}} <<end:add_more>>",
			data: TemplateData{"order": map[string]interface{}{
				"lines": []map[string]interface{}{{"sku": "A1"}, {"sku": "B2"}},
			}},
			want: "A1 B2 ",
		},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveVariables(r.ResolveConditionals(r.ResolveRepeaters(tt.template, tt.data), tt.data), tt.data)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNestedRepeaters(t *testing.T) {
	r := newTestResolver()

	t.Run("parent and child blocks", func(t *testing.T) {
		tpl := `
      <<add_more parents>>
        Parent: {{name}}
        <<add_more children>>
          Child: {{name}}, Age: {{age}}
        <<end:add_more>>
      <<end:add_more>>
    `
		data := TemplateData{"parents": []interface{}{
			map[string]interface{}{
				"name": "John",
				"children": []interface{}{
					map[string]interface{}{"name": "Emma", "age": 10},
					map[string]interface{}{"name": "Alex", "age": 7},
				},
			},
		}}

		got := r.Resolve(tpl, data, "")
		assert.Equal(t, "Parent: John Child: Emma, Age: 10 Child: Alex, Age: 7", normalizeSpace(got))
	})

	t.Run("special conditions at every level", func(t *testing.T) {
		tpl := `
      <<add_more parents>>
        [[common]]Family: [[end:common]]{{name}}
        <<add_more children>>
          [[count2]]Child: {{name}}[[end:count2]]
        <<end:add_more>>
      <<end:add_more>>
    `
		data := TemplateData{"parents": []interface{}{
			map[string]interface{}{"name": "John", "children": []interface{}{
				map[string]interface{}{"name": "Emma"},
				map[string]interface{}{"name": "Alex"},
			}},
			map[string]interface{}{"name": "Jane", "children": []interface{}{
				map[string]interface{}{"name": "Tom"},
			}},
		}}

		got := r.Resolve(tpl, data, "")
		assert.Equal(t, "Family:John Child: Emma Child: Alex Jane Child: Tom", normalizeSpace(got))
	})

	t.Run("inner index shadows outer index", func(t *testing.T) {
		tpl := "<<add_more rows>>[<<add_more cells>>{{_index}}<<end:add_more>>]{{_index}} <<end:add_more>>"
		data := TemplateData{"rows": []interface{}{
			map[string]interface{}{"cells": []int{1, 2, 3}},
			map[string]interface{}{"cells": []int{4}},
		}}
		assert.Equal(t, "[012]0 [0]1 ", r.Resolve(tpl, data, ""))
	})
}

func TestRepeaterDoesNotMutateScope(t *testing.T) {
	data := TemplateData{"items": []map[string]interface{}{{"name": "a"}}}
	newTestResolver().ResolveRepeaters("<<add_more items>>{{name}}<<end:add_more>>", data)

	assert.NotContains(t, data, "_index")
	assert.NotContains(t, data, "_length")
	assert.NotContains(t, data, "name")
	assert.NotContains(t, data["items"].([]map[string]interface{})[0], "_index")
}

func TestResolveConditionals(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     TemplateData
		want     string
	}{
		{"true condition", "[[show]]Secret message[[end:show]]", TemplateData{"show": true}, "Secret message"},
		{"false condition", "[[show]]Secret message[[end:show]]", TemplateData{"show": false}, ""},
		{"missing path", "a[[show]]X[[end:show]]b", TemplateData{}, "ab"},
		{"nested property", "[[user.active]]Welcome back![[end:user.active]]", TemplateData{"user": map[string]interface{}{"active": true}}, "Welcome back!"},
		{"and both true", "[[a and b]]Both true[[end:a and b]]", TemplateData{"a": true, "b": true}, "Both true"},
		{"and one false", "[[a and b]]Both true[[end:a and b]]", TemplateData{"a": true, "b": false}, ""},
		{"and first false", "[[a and b]]Both true[[end:a and b]]", TemplateData{"a": false, "b": true}, ""},
		{"and three terms", "[[a and b and c]]X[[end:a and b and c]]", TemplateData{"a": 1, "b": "y", "c": false}, ""},
		{"or first true", "[[a or b]]At least one true[[end:a or b]]", TemplateData{"a": true, "b": false}, "At least one true"},
		{"or second true", "[[a or b]]At least one true[[end:a or b]]", TemplateData{"a": false, "b": true}, "At least one true"},
		{"or both true", "[[a or b]]At least one true[[end:a or b]]", TemplateData{"a": true, "b": true}, "At least one true"},
		{"or both false", "[[a or b]]At least one true[[end:a or b]]", TemplateData{"a": false, "b": false}, ""},
		{"trailing whitespace before end marker is dropped", "[[a]]Yes   \n\t[[end:a]]!", TemplateData{"a": true}, "Yes!"},
		{"leading whitespace of body is kept", "[[a]]  Yes[[end:a]]", TemplateData{"a": true}, "  Yes"},
		{"padded condition", "[[ a ]]X[[end: a ]]", TemplateData{"a": true}, "X"},
		{"end marker must match verbatim", "[[ a ]]X[[end:a]]", TemplateData{"a": true}, "[[ a ]]X[[end:a]]"},
		{"unterminated block stays literal", "[[a]]X", TemplateData{"a": true}, "[[a]]X"},
		{"body is resolved", "[[a]]Hi {{name}}[[end:a]]", TemplateData{"a": true, "name": "Bo"}, "Hi Bo"},
		{"nested blocks", "[[a]]1[[b]]2[[end:b]][[c]]3[[end:c]][[end:a]]", TemplateData{"a": true, "b": true, "c": false}, "12"},
		{"sibling blocks", "[[a]]1[[end:a]]-[[b]]2[[end:b]]", TemplateData{"a": false, "b": true}, "-2"},
		{"empty string is false", "[[s]]X[[end:s]]", TemplateData{"s": ""}, ""},
		{"zero is false", "[[n]]X[[end:n]]", TemplateData{"n": 0}, ""},
		{"empty list is true", "[[l]]X[[end:l]]", TemplateData{"l": []interface{}{}}, "X"},
		{"first matching end wins", "[[a]]1[[end:a]]2[[end:a]]", TemplateData{"a": true}, "12[[end:a]]"},
		{"escaped comparison", "[[count &gt; 1]]yes[[end:count &gt; 1]]", TemplateData{"count": 3}, "yes"},
		{"escaped comparison false", "[[count &gt; 1]]yes[[end:count &gt; 1]]", TemplateData{"count": 1}, ""},
		{"escaped end marker must match verbatim", "[[count &gt; 1]]yes[[end:count > 1]]", TemplateData{"count": 3}, "[[count &gt; 1]]yes[[end:count > 1]]"},
		{"escaped ampersand in path", "[[r&amp;d]]X[[end:r&amp;d]]", TemplateData{"r&d": true}, "X"},
		{"repeater inside block", "[[a]]<<add_more l>>{{value}}<<end:add_more>>[[end:a]]", TemplateData{"a": true, "l": []int{1, 2}}, "12"},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ResolveVariables(r.ResolveConditionals(tt.template, tt.data), tt.data)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeeplyNestedConditionals(t *testing.T) {
	const depth = 40

	var b strings.Builder
	data := TemplateData{}
	for i := 0; i < depth; i++ {
		fmt.Fprintf(&b, "[[c%d]]", i)
		data[fmt.Sprintf("c%d", i)] = true
	}
	b.WriteString("core")
	for i := depth - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "[[end:c%d]]", i)
	}

	assert.Equal(t, "core", newTestResolver().ResolveConditionals(b.String(), data))
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name  string
		cond  string
		scope TemplateData
		want  bool
	}{
		{"count1 with one element", "count1", TemplateData{"_length": 1}, true},
		{"count1 with two elements", "count1", TemplateData{"_length": 2}, false},
		{"count1 outside a repeater", "count1", TemplateData{}, false},
		{"count1 ignores numeric strings", "count1", TemplateData{"_length": "1"}, false},
		{"count2 always", "count2", TemplateData{}, true},
		{"common on first element", "common", TemplateData{"_index": 0}, true},
		{"common on later element", "common", TemplateData{"_index": 2}, false},
		{"common outside a repeater", "common", TemplateData{}, false},
		{"negation falls back to base path", "agent.no", TemplateData{"agent": map[string]interface{}{"yes": true}}, false},
		{"negation of missing base", "agent.no", TemplateData{}, true},
		{"negation of false base", "agent.no", TemplateData{"agent": false}, true},
		{"literal .no key wins", "agent.no", TemplateData{"agent.no": false, "agent": false}, false},
		{"nested .no field wins", "agent.no", TemplateData{"agent": map[string]interface{}{"no": true}}, true},
		{"greater than", "count > limit", TemplateData{"count": 3, "limit": 2}, true},
		{"not greater than", "count > limit", TemplateData{"count": 2, "limit": 2}, false},
		{"numeric strings", "a > b", TemplateData{"a": "10", "b": " 9 "}, true},
		{"hex string", "a > b", TemplateData{"a": "0x10", "b": 15}, true},
		{"literal right operand", "count > 1", TemplateData{"count": 3}, true},
		{"literal left operand", "5 > count", TemplateData{"count": 3}, true},
		{"NaN compares false", "a > 1", TemplateData{"a": "abc"}, false},
		{"undefined compares false", "missing > 1", TemplateData{}, false},
		{"nil is zero", "n > -1", TemplateData{"n": nil}, true},
		{"bool is one", "t > 0", TemplateData{"t": true}, true},
		{"empty string is zero", "s > 0", TemplateData{"s": ""}, false},
		{"single-element list", "l > 1", TemplateData{"l": []int{2}}, true},
		{"and before or splits on and", "a and b or c", TemplateData{"a": true, "b": true, "c": true}, false},
		{"or before and splits on or", "a or b and c", TemplateData{"a": true, "b": false, "c": false}, true},
		{"terms are trimmed", "a  and  b", TemplateData{"a": true, "b": true}, true},
		{"and with special terms", "common and show", TemplateData{"_index": 0, "show": true}, true},
		{"dotted key taken literally", "a.b", TemplateData{"a.b": true}, true},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.EvaluateCondition(tt.cond, tt.scope))
		})
	}
}

func TestResolveVariables(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     TemplateData
		want     string
	}{
		{"basic", "Hello {{name}}!", TemplateData{"name": "World"}, "Hello World!"},
		{"whitespace inside braces", "{{  name\n }}", TemplateData{"name": "W"}, "W"},
		{"escaped output", "{{x}}", TemplateData{"x": "a<b & c>"}, "a&lt;b &amp; c&gt;"},
		{"undefined renders empty", "[{{missing}}]", TemplateData{}, "[]"},
		{"nil renders empty", "[{{n}}]", TemplateData{"n": nil}, "[]"},
		{"nested property", "{{user.name}} is {{user.age}} years old.", TemplateData{"user": map[string]interface{}{"name": "John", "age": 30}}, "John is 30 years old."},
		{"spacing prefixes", "{{ls.name}}{{rs.name}}{{bs.name}}{{,name}}", TemplateData{"name": "test"}, " testtest  test ,test"},
		{"case prefixes", "{{uc.name}}{{lc.name}}{{tc.name}}{{fc.name}}", TemplateData{"name": "hello world"}, "HELLO WORLDhello worldHello WorldHello world"},
		{"prefixes apply in reverse", "{{ls.rs.name}}|{{uc.lc.name}}|{{lc.uc.name}}", TemplateData{"name": "Ab"}, " Ab |AB|ab"},
		{"case prefixes keep entities", "{{uc.x}}", TemplateData{"x": "a&b"}, "A&amp;B"},
		{"indexed access", "{{items[1]}}", TemplateData{"items": []string{"a", "b"}}, "b"},
		{"empty brackets mean first element", "{{items[].name}}", TemplateData{"items": []map[string]interface{}{{"name": "first"}, {"name": "second"}}}, "first"},
		{"array renders as JSON", "{{items}}", TemplateData{"items": []interface{}{"a", 1}}, `["a",1]`},
		{"object renders as escaped JSON", "{{obj}}", TemplateData{"obj": map[string]interface{}{"k": "<v>"}}, `{"k":"&lt;v&gt;"}`},
		{"length of a list", "{{items.length}}", TemplateData{"items": []int{1, 2, 3}}, "3"},
		{"float", "{{p}}", TemplateData{"p": 19.99}, "19.99"},
		{"integral float", "{{p}}", TemplateData{"p": 3.0}, "3"},
		{"bool", "{{b}}", TemplateData{"b": false}, "false"},
		{"uppercase rule", "{{name|uppercase}}", TemplateData{"name": "abc"}, "ABC"},
		{"rule and prefix", "{{ls.name | ucwords}}", TemplateData{"name": "new york"}, " New York"},
		{"unknown rule keeps the value", "{{name|shout}}", TemplateData{"name": "abc"}, "abc"},
		{"number_format", "{{n|number_format}}", TemplateData{"n": 1234567.891}, "1,234,567.891"},
		{"number_format failure", "{{n|number_format}}", TemplateData{"n": "n/a"}, "n/a"},
		{"date default pattern", "{{d|date}}", TemplateData{"d": "2024-03-05"}, "2024-03-05"},
		{"date pattern", "{{d|date:dd.MM.yyyy}}", TemplateData{"d": "2024-03-05"}, "05.03.2024"},
		{"date pattern with colon", "{{d|date:HH:mm}}", TemplateData{"d": "2024-03-05T14:07:00Z"}, "14:07"},
		{"date failure", "{{d|date}}", TemplateData{"d": "someday & later"}, "someday &amp; later"},
		{"line break inside expression is not a placeholder", "{{na\nme}}", TemplateData{"na\nme": "x"}, "{{na\nme}}"},
		{"unterminated placeholder stays literal", "{{name", TemplateData{"name": "x"}, "{{name"},
		{"literal dotted key", "{{a.b}}", TemplateData{"a.b": "lit", "a": map[string]interface{}{"b": "nested"}}, "lit"},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolveVariables(tt.template, tt.data))
		})
	}
}

func TestResolve(t *testing.T) {
	r := newTestResolver()

	t.Run("company name pre-pass", func(t *testing.T) {
		got := r.Resolve("{{ company_name }} & {{x}}", TemplateData{"x": 1}, "A&B")
		assert.Equal(t, "A&amp;B & 1", got)
	})

	t.Run("company name from data when no preset", func(t *testing.T) {
		got := r.Resolve("{{company_name}}", TemplateData{"company_name": "Data Inc"}, "")
		assert.Equal(t, "Data Inc", got)
	})

	t.Run("full pipeline", func(t *testing.T) {
		tpl := "Dear {{fc.name}},[[vip]] thanks for {{years}} years.[[end:vip]]" +
			"<<add_more orders>> #{{id}}<<end:add_more>>"
		data := TemplateData{
			"name":   "ADA",
			"vip":    true,
			"years":  3,
			"orders": []map[string]interface{}{{"id": 1}, {"id": 2}},
		}
		assert.Equal(t, "Dear Ada, thanks for 3 years. #1 #2", r.Resolve(tpl, data, ""))
	})
}

func TestPackageLevelResolvers(t *testing.T) {
	data := TemplateData{"a": true, "l": []int{1, 2}, "n": "x"}

	assert.Equal(t, "12", ResolveRepeaters("<<add_more l>>{{value}}<<end:add_more>>", data))
	assert.Equal(t, "", ResolveConditionals("[[a]]{{n}}[[end:a]]", TemplateData{"a": false, "n": "x"}))
	assert.Equal(t, "x", ResolveConditionals("[[a]]{{n}}[[end:a]]", data))
	assert.Equal(t, "x", ResolveVariables("{{n}}", data))
}

func TestReplaceSimplePlaceholder(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		key   string
		value string
		want  string
	}{
		{"plain and padded", "{{company_name}}/{{ company_name }}", "company_name", "Acme", "Acme/Acme"},
		{"longer key untouched", "{{company_names}}", "company_name", "Acme", "{{company_names}}"},
		{"value is escaped", "{{k}}", "k", "<b>", "&lt;b&gt;"},
		{"dollar signs are literal", "{{k}}", "k", "$1", "$1"},
		{"key with regexp characters", "{{a.b}}", "a.b", "v", "v"},
		{"empty key", "{{}}", "", "v", "{{}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceSimplePlaceholder(tt.text, tt.key, tt.value))
		})
	}
}

func TestCleanRepeaterPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{" items ", "items"},
		{`="items"`, "items"},
		{`>items`, "items"},
		{`= > "items"`, "items"},
		{"&quot;items&quot;", "items"},
		{"&gt;items", "items"},
		{"order.lines", "order.lines"},
		{`"`, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanRepeaterPath(tt.raw), "raw %q", tt.raw)
	}
}

func TestResolverConcurrentUse(t *testing.T) {
	r := newTestResolver()
	data := TemplateData{"items": []map[string]interface{}{{"name": "a"}, {"name": "b"}}}
	const tpl = "<<add_more items>>[[common]]>[[end:common]]{{uc.name}}<<end:add_more>>"

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Resolve(tpl, data, "")
		}()
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, ">AB", got)
	}
}

package permission

import "testing"

func permWithConditions(cond map[string]any) Permission {
	p, _ := New("documents:read", "")
	p.Conditions = cond
	return p
}

func TestValidateConditions(t *testing.T) {
	cases := []struct {
		name string
		cond map[string]any
		ctx  map[string]any
		want bool
	}{
		{"no conditions", nil, nil, true},
		{"equality holds", map[string]any{"department": "sales"}, map[string]any{"department": "sales"}, true},
		{"equality fails", map[string]any{"department": "sales"}, map[string]any{"department": "hr"}, false},
		{"missing context key", map[string]any{"department": "sales"}, map[string]any{}, false},
		{"in holds", map[string]any{"region": map[string]any{"$in": []any{"eu", "us"}}}, map[string]any{"region": "eu"}, true},
		{"in fails", map[string]any{"region": map[string]any{"$in": []any{"eu", "us"}}}, map[string]any{"region": "apac"}, false},
		{"in malformed operand", map[string]any{"region": map[string]any{"$in": "eu"}}, map[string]any{"region": "eu"}, false},
		{"gt holds", map[string]any{"level": map[string]any{"$gt": 3}}, map[string]any{"level": 5}, true},
		{"gt fails equal", map[string]any{"level": map[string]any{"$gt": 3}}, map[string]any{"level": 3}, false},
		{"gt non-numeric", map[string]any{"level": map[string]any{"$gt": 3}}, map[string]any{"level": "high"}, false},
		{"lt holds", map[string]any{"age": map[string]any{"$lt": 10.0}}, map[string]any{"age": 7}, true},
		{"regex holds", map[string]any{"email": map[string]any{"$regex": `@corp\.example$`}}, map[string]any{"email": "a@corp.example"}, true},
		{"regex fails", map[string]any{"email": map[string]any{"$regex": `@corp\.example$`}}, map[string]any{"email": "a@other.example"}, false},
		{"regex invalid pattern", map[string]any{"email": map[string]any{"$regex": `([`}}, map[string]any{"email": "a@corp.example"}, false},
		{"unknown operator", map[string]any{"x": map[string]any{"$between": []any{1, 2}}}, map[string]any{"x": 1}, false},
		{"multi-key operator map", map[string]any{"x": map[string]any{"$gt": 1, "$lt": 3}}, map[string]any{"x": 2}, false},
		{"all must hold", map[string]any{"a": "1", "b": "2"}, map[string]any{"a": "1", "b": "wrong"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateConditions(permWithConditions(tc.cond), tc.ctx)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

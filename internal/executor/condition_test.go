package executor

import "testing"

func TestEvalCondition(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DEPLOY_ENV": "production",
		"SKIP_TESTS": "false",
		"FLAG":       "1",
		"EMPTY":      "",
	}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{"", true, false},
		{"   ", true, false},
		{"$DEPLOY_ENV == production", true, false},
		{"$DEPLOY_ENV == staging", false, false},
		{"$DEPLOY_ENV != staging", true, false},
		{"${DEPLOY_ENV} == production", true, false},
		{`$DEPLOY_ENV == "production"`, true, false},
		{"$FLAG", true, false},
		{"$SKIP_TESTS", false, false},
		{"$EMPTY", false, false},
		{"$UNDEFINED", false, false},
		{"$UNDEFINED == ''", true, false},
		{"literal", true, false},
		{"no", false, false},
		{"off", false, false},
		{"$A == ", false, true},
		{"== b", false, true},
		{"$A == b == c", false, true},
		{"two words", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			got, err := EvalCondition(tt.expr, env)
			if tt.wantErr {
				if err == nil {
					t.Errorf("EvalCondition(%q) expected error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("EvalCondition(%q) failed: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("EvalCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCheckCondition(t *testing.T) {
	t.Parallel()

	if err := CheckCondition("$A == b"); err != nil {
		t.Errorf("valid condition rejected: %v", err)
	}
	if err := CheckCondition("$A =="); err == nil {
		t.Error("expected error for missing operand")
	}
}

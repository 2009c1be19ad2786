package record

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"quoted delimiter", `a,"b,c",d`, []string{"a", "b,c", "d"}},
		{"empty line", "", []string{""}},
		{"trailing delimiter", "a,b,", []string{"a", "b", ""}},
		{"leading delimiter", ",a", []string{"", "a"}},
		{"all quoted", `"x","y"`, []string{"x", "y"}},
		{"empty quoted field", `a,"",b`, []string{"a", "", "b"}},
		{"embedded quotes kept", `"say ""hi""",z`, []string{`say ""hi""`, "z"}},
		{"unterminated quote swallows rest", `a,"b,c`, []string{"a", "b,c"}},
		{"lone quote", `"`, []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestParser_CustomDelimiter(t *testing.T) {
	p := Parser{Delimiter: ';', Quote: '\''}
	got := p.Parse(`x;'y;z';w`)
	want := []string{"x", "y;z", "w"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParser_ZeroValueUsesDefaults(t *testing.T) {
	var p Parser
	got := p.Parse(`1,"2,3"`)
	if len(got) != 2 || got[1] != "2,3" {
		t.Errorf("zero-value parser should split on comma, got %q", got)
	}
}

func TestConvert(t *testing.T) {
	if v, err := Float(" 12.5 "); err != nil || v != 12.5 {
		t.Errorf("Float = %v, %v", v, err)
	}
	if _, err := Float("n/a"); err == nil {
		t.Error("Float should reject non-numeric input")
	}
	if v, err := Int("42"); err != nil || v != 42 {
		t.Errorf("Int = %v, %v", v, err)
	}
	if v, err := Int64("331002651"); err != nil || v != 331002651 {
		t.Errorf("Int64 = %v, %v", v, err)
	}
	if v, err := Int64("1500.0"); err != nil || v != 1500 {
		t.Errorf("Int64 with zero fraction = %v, %v", v, err)
	}
	if _, err := Int64("1500.5"); err == nil {
		t.Error("Int64 should reject fractional values")
	}
	if _, err := Int64(""); err == nil {
		t.Error("Int64 should reject empty input")
	}
}

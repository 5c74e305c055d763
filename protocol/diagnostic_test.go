package protocol

import (
	"encoding/json"
	"testing"
)

func TestDiagnosticSeverity_WireNames(t *testing.T) {
	cases := map[DiagnosticSeverity]string{
		SeverityHidden:  "hidden",
		SeverityInfo:    "info",
		SeverityWarning: "warning",
		SeverityError:   "error",
	}

	for sev, name := range cases {
		if sev.String() != name {
			t.Errorf("String() = %q, want %q", sev.String(), name)
		}

		data, err := json.Marshal(sev)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		if string(data) != `"`+name+`"` {
			t.Errorf("marshal %s = %s", name, data)
		}

		var got DiagnosticSeverity
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", name, err)
		}
		if got != sev {
			t.Errorf("round trip %s = %v", name, got)
		}
	}
}

func TestDiagnosticSeverity_UnknownName(t *testing.T) {
	var sev DiagnosticSeverity
	if err := json.Unmarshal([]byte(`"fatal"`), &sev); err == nil {
		t.Fatal("expected error for unknown severity name")
	}
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{
		Span: NewLinePositionSpan(
			LinePosition{Line: 1, Character: 3},
			LinePosition{Line: 1, Character: 7},
		),
		Severity: SeverityError,
		Code:     "FS0039",
		Message:  "The value 'x' is not defined",
	}

	want := "(1,3)-(1,7): error FS0039: The value 'x' is not defined"
	if d.String() != want {
		t.Errorf("String() = %q, want %q", d.String(), want)
	}

	d.Code = ""
	want = "(1,3)-(1,7): error: The value 'x' is not defined"
	if d.String() != want {
		t.Errorf("String() without code = %q, want %q", d.String(), want)
	}
}

func TestPackageReference_String(t *testing.T) {
	ref := PackageReference{Name: "FSharp.Data", Version: "6.3.0"}
	if ref.String() != "FSharp.Data, 6.3.0" {
		t.Errorf("String() = %q", ref.String())
	}

	bare := PackageReference{Name: "FSharp.Data"}
	if bare.String() != "FSharp.Data" {
		t.Errorf("String() without version = %q", bare.String())
	}
}

package simerr

import (
	"errors"
	"testing"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeDataError, "failed to parse", cause)
	if err.Error() != "failed to parse: boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause via errors.Is")
	}
}

func TestIsMatchesByCodeNotMessage(t *testing.T) {
	a := New(CodeEndOfData, "custom message a")
	b := New(CodeEndOfData, "custom message b")
	if !errors.Is(a, b) {
		t.Fatalf("expected errors with the same code to match via errors.Is")
	}
	if errors.Is(a, ErrDataError) {
		t.Fatalf("expected errors with different codes to not match")
	}
}

func TestOfChecksCode(t *testing.T) {
	if !Of(ErrEndOfData, CodeEndOfData) {
		t.Fatalf("expected Of to match ErrEndOfData's code")
	}
	if Of(errors.New("plain"), CodeEndOfData) {
		t.Fatalf("expected Of to reject a non-*Error")
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := map[Code]int{
		CodeEndOfData:          1,
		CodeOrderIDExist:       10,
		CodeOrderNotFound:      12,
		CodeInstrumentNotFound: 16,
		CodeUnknown:            0,
	}
	for code, want := range cases {
		if got := code.ExitCode(); got != want {
			t.Fatalf("code %v: expected exit code %d, got %d", code, want, got)
		}
	}
}

package archive

import (
	"errors"
	"mime/multipart"
	"testing"
)

func TestExtractSingleFile(t *testing.T) {
	if _, err := extractSingleFile(nil); err == nil {
		t.Fatal("expected error for nil form")
	}

	one := &multipart.FileHeader{Filename: "a.zip"}
	form := &multipart.Form{File: map[string][]*multipart.FileHeader{"upload": {one}}}
	got, err := extractSingleFile(form)
	if err != nil {
		t.Fatalf("extractSingleFile returned error: %v", err)
	}
	if got != one {
		t.Fatalf("unexpected file header: %#v", got)
	}

	form.File["other"] = []*multipart.FileHeader{{Filename: "b.zip"}}
	_, err = extractSingleFile(form)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != codeInvalidInput {
		t.Fatalf("expected INVALID_INPUT error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{newError(codeLimitExceeded, "too big", nil), 413, codeLimitExceeded},
		{newError(codeInvalidInput, "bad", nil), 400, codeInvalidInput},
		{newError(codeJobNotFound, "missing", nil), 404, codeJobNotFound},
		{errors.New("boom"), 500, codeInternalError},
	}
	for _, tt := range tests {
		status, apiErr := classify(tt.err)
		if status != tt.status || apiErr.Code != tt.code {
			t.Fatalf("classify(%v) = %d %s, want %d %s", tt.err, status, apiErr.Code, tt.status, tt.code)
		}
	}
}

package types

import "testing"

func TestNewTagRejectsEmpty(t *testing.T) {
	if _, err := NewTag(""); err == nil {
		t.Fatal("NewTag(\"\") succeeded, want error")
	}
}

func TestNewTagAcceptsPunctuation(t *testing.T) {
	tag, err := NewTag("backup/nightly-02")
	if err != nil {
		t.Fatalf("NewTag() error = %v", err)
	}
	if tag.String() != "backup/nightly-02" {
		t.Fatalf("String() = %q", tag.String())
	}
}

func TestNewTagRejectsBadChar(t *testing.T) {
	if _, err := NewTag("has space"); err == nil {
		t.Fatal("NewTag(\"has space\") succeeded, want error")
	}
}

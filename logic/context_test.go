package logic

import "testing"

func TestScratch(t *testing.T) {
	s := newScratch()

	s.Set("name", "fetch")
	s.Set("tries", 3)
	s.Set("big", int64(7))
	s.Set("ratio", 2.0)
	s.Set("ok", true)

	if got := s.GetString("name"); got != "fetch" {
		t.Errorf("GetString(name) = %q, want fetch", got)
	}
	if got := s.GetInt("tries"); got != 3 {
		t.Errorf("GetInt(tries) = %d, want 3", got)
	}
	if got := s.GetInt("big"); got != 7 {
		t.Errorf("GetInt(big) = %d, want 7", got)
	}
	if got := s.GetInt("ratio"); got != 2 {
		t.Errorf("GetInt(ratio) = %d, want 2", got)
	}
	if !s.GetBool("ok") {
		t.Error("GetBool(ok) = false")
	}
	if got := s.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestScratchMissingAndMistyped(t *testing.T) {
	s := newScratch()
	s.Set("n", 1)

	if got := s.GetString("absent"); got != "" {
		t.Errorf("GetString(absent) = %q, want empty", got)
	}
	if got := s.GetString("n"); got != "" {
		t.Errorf("GetString(n) = %q, want empty for mistyped value", got)
	}
	if got := s.GetInt("absent"); got != 0 {
		t.Errorf("GetInt(absent) = %d, want 0", got)
	}
	if s.GetBool("n") {
		t.Error("GetBool(n) = true for mistyped value")
	}
	if _, ok := s.Get("absent"); ok {
		t.Error("Get(absent) reported present")
	}
}

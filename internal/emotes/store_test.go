package emotes

import "testing"

func TestReplaceAndLookup(t *testing.T) {
	s := NewStore()
	s.Replace(Sets{
		"0":    {{ID: 25, Code: "Kappa"}, {ID: 88, Code: "PogChamp"}},
		"1234": {{ID: 1, Code: "myEmote"}},
	})

	if s.Count() != 3 {
		t.Fatalf("expected 3 emotes, got %d", s.Count())
	}
	e, ok := s.Lookup("Kappa")
	if !ok || e.ID != 25 {
		t.Fatalf("unexpected lookup result: %+v %v", e, ok)
	}
	if _, ok := s.Lookup("kappa"); ok {
		t.Fatal("emote codes are case-sensitive")
	}
	if len(s.SetIDs()) != 2 {
		t.Fatalf("expected 2 sets, got %v", s.SetIDs())
	}
}

func TestReplaceDropsOldEmotes(t *testing.T) {
	s := NewStore()
	s.Replace(Sets{"0": {{ID: 25, Code: "Kappa"}}})
	s.Replace(Sets{"0": {{ID: 1, Code: "Other"}}})

	if _, ok := s.Lookup("Kappa"); ok {
		t.Fatal("old emote should be gone after replace")
	}
	if _, ok := s.Lookup("Other"); !ok {
		t.Fatal("new emote missing")
	}
}

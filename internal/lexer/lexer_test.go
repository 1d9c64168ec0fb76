package lexer

import "testing"

func TestTokenizeBasics(t *testing.T) {
	toks, err := Tokenize("bpm 120\nseq: C4 1/4, D4 1/4")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Kind{Keyword, Integer, Keyword, Colon, Note, Duration, Comma, Note, Duration, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %v, want %v (%+v)", i, toks[i].Kind, k, toks[i])
		}
	}
	if toks[4].Text != "C4" || toks[4].Line != 2 {
		t.Errorf("token 4 = %+v, want text C4 on line 2", toks[4])
	}
}

func TestTokenizeRepeatMarker(t *testing.T) {
	toks, err := Tokenize("use r x2")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	// "use" and "r" are both keywords; "x2" classifies as Repeat (priority over ident).
	if toks[0].Kind != Keyword || toks[1].Kind != Keyword || toks[2].Kind != Repeat {
		t.Fatalf("got %+v", toks)
	}
}

func TestTokenizeComment(t *testing.T) {
	toks, err := Tokenize("bpm 120 // a trailing comment\ngrid 16")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	kinds := []Kind{Keyword, Integer, Keyword, Integer, EOF}
	if len(toks) != len(kinds) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(kinds), toks)
	}
}

func TestTokenizeUnexpectedCharacter(t *testing.T) {
	_, err := Tokenize("bpm 120 @")
	if err == nil {
		t.Fatal("expected error for '@'")
	}
	lexErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if lexErr.Line != 1 || lexErr.Column != 9 {
		t.Errorf("got line %d col %d, want 1:9", lexErr.Line, lexErr.Column)
	}
}

func TestTokenizeDecimalAndChord(t *testing.T) {
	toks, err := Tokenize("swing 0.5\nseq: [C4 E4 G4] 1/2")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Kind{Keyword, Decimal, Keyword, Colon, LBracket, Note, Note, Note, RBracket, Duration, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
}

func TestTokenizeLineColumnAcrossLines(t *testing.T) {
	toks, err := Tokenize("bpm 120\n\ntrack lead inst=lead: C4 1/4")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var trackTok Token
	for _, tok := range toks {
		if tok.Text == "track" {
			trackTok = tok
			break
		}
	}
	if trackTok.Line != 3 || trackTok.Column != 1 {
		t.Errorf("track token at %d:%d, want 3:1", trackTok.Line, trackTok.Column)
	}
}

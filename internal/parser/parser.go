// Package parser builds an ast.Program from a lexer.Token stream, dispatching
// on the next token at the top level — the same style as the teacher's
// internal/mml/parser.go "switch { case ch == ... }" command dispatch,
// generalized from single-byte commands to token-kind dispatch. The parser
// never recovers: it aborts and returns the first diagnostic encountered.
package parser

import (
	"strconv"
	"strings"

	"github.com/synthseq/synthseq/internal/ast"
	"github.com/synthseq/synthseq/internal/diag"
	"github.com/synthseq/synthseq/internal/lexer"
	"github.com/synthseq/synthseq/internal/pitch"
)

var topLevelKeywords = map[string]bool{
	"bpm": true, "inst": true, "seq": true, "swing": true,
	"loop": true, "grid": true, "track": true, "pattern": true,
}

var waveforms = map[string]bool{
	"sine": true, "square": true, "sawtooth": true, "triangle": true,
}

var instParams = map[string]bool{
	"gain": true, "attack": true, "decay": true, "sustain": true, "release": true,
}

// Parser consumes a token stream produced by internal/lexer.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// Parse lexes and parses src into a Program, applying the §4.2 defaults
// (bpm 120, a synthesized `lead`/`sine` instrument) when absent.
func Parse(src string) (*ast.Program, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		lexErr := err.(*lexer.Error)
		return nil, diag.New(diag.Lexical, lexErr.Line, lexErr.Column, "%s", lexErr.Message)
	}
	p := &Parser{toks: toks}
	return p.parseProgram()
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) advance() lexer.Token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) errf(kind diag.Kind, format string, args ...any) error {
	tok := p.cur()
	return diag.New(kind, tok.Line, tok.Column, format, args...)
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{Settings: ast.DefaultSettings()}
	bpmSet := false
	seqSet := false

	for p.cur().Kind != lexer.EOF {
		tok := p.cur()
		if tok.Kind != lexer.Keyword {
			return nil, p.errf(diag.Syntactic, "Unexpected token %q at top level", tok.Text)
		}
		switch strings.ToLower(tok.Text) {
		case "bpm":
			if bpmSet {
				return nil, p.errf(diag.Syntactic, "Duplicate bpm directive")
			}
			bpmSet = true
			p.advance()
			v, err := p.expectInteger("Expected number after bpm")
			if err != nil {
				return nil, err
			}
			if v <= 0 {
				return nil, diag.New(diag.Value, tok.Line, tok.Column, "bpm must be positive, got %d", v)
			}
			prog.BPM = float64(v)
		case "swing":
			p.advance()
			v, err := p.expectNumber("Expected number after swing")
			if err != nil {
				return nil, err
			}
			if v < 0 || v > 0.75 {
				return nil, diag.New(diag.Value, tok.Line, tok.Column, "swing must be in [0, 0.75], got %v", v)
			}
			prog.Settings.Swing = v
		case "loop":
			p.advance()
			v, err := p.expectInteger("Expected integer after loop")
			if err != nil {
				return nil, err
			}
			if v < 1 {
				return nil, diag.New(diag.Value, tok.Line, tok.Column, "loop must be >= 1, got %d", v)
			}
			prog.Settings.LoopBars = v
		case "grid":
			p.advance()
			v, err := p.expectInteger("Expected integer after grid")
			if err != nil {
				return nil, err
			}
			switch v {
			case 2, 4, 8, 16, 32, 64:
			default:
				return nil, diag.New(diag.Value, tok.Line, tok.Column, "grid must be one of 2,4,8,16,32,64, got %d", v)
			}
			prog.Settings.Grid = v
		case "inst":
			inst, err := p.parseInstrument()
			if err != nil {
				return nil, err
			}
			prog.Instruments = append(prog.Instruments, inst)
		case "pattern":
			pat, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			prog.Patterns = append(prog.Patterns, pat)
		case "track":
			trk, err := p.parseTrack()
			if err != nil {
				return nil, err
			}
			prog.Tracks = append(prog.Tracks, trk)
		case "seq":
			if seqSet {
				return nil, p.errf(diag.Syntactic, "Duplicate top-level seq directive")
			}
			seqSet = true
			p.advance()
			if _, err := p.expectKind(lexer.Colon, "Expected ':' after seq"); err != nil {
				return nil, err
			}
			items, err := p.parseSequenceItems()
			if err != nil {
				return nil, err
			}
			prog.HasSequence = true
			prog.Sequence = items
		default:
			return nil, p.errf(diag.Syntactic, "Unknown directive %q", tok.Text)
		}
	}

	if !bpmSet {
		prog.BPM = 120
	}
	if len(prog.Instruments) == 0 {
		prog.Instruments = append(prog.Instruments, ast.Instrument{Name: "lead", Waveform: "sine"})
	}
	return prog, nil
}

func (p *Parser) parseInstrument() (ast.Instrument, error) {
	start := p.cur()
	p.advance() // 'inst'
	nameTok, err := p.expectKind(lexer.Ident, "Expected instrument name after inst")
	if err != nil {
		return ast.Instrument{}, err
	}
	waveTok, err := p.expectKind(lexer.Ident, "Expected waveform after instrument name")
	if err != nil {
		return ast.Instrument{}, err
	}
	waveform := strings.ToLower(waveTok.Text)
	if !waveforms[waveform] {
		return ast.Instrument{}, diag.New(diag.Value, waveTok.Line, waveTok.Column, "unknown waveform %q", waveTok.Text)
	}
	inst := ast.Instrument{Name: nameTok.Text, Waveform: waveform, Line: start.Line, Column: start.Column}
	var adsr ast.ADSR
	var sawAttack, sawDecay, sawSustain, sawRelease bool

	for p.cur().Kind == lexer.Ident {
		keyTok := p.cur()
		key := strings.ToLower(keyTok.Text)
		if !instParams[key] {
			break
		}
		p.advance()
		if _, err := p.expectKind(lexer.Equals, "Expected '=' after "+key); err != nil {
			return ast.Instrument{}, err
		}
		val, err := p.expectNumber("Expected number after " + key + "=")
		if err != nil {
			return ast.Instrument{}, err
		}
		switch key {
		case "gain":
			if val < 0 || val > 1 {
				return ast.Instrument{}, diag.New(diag.Value, keyTok.Line, keyTok.Column, "gain must be in [0,1], got %v", val)
			}
			v := val
			inst.Gain = &v
		case "attack":
			if val < 0 {
				return ast.Instrument{}, diag.New(diag.Value, keyTok.Line, keyTok.Column, "attack must be >= 0, got %v", val)
			}
			adsr.Attack = val
			sawAttack = true
		case "decay":
			if val < 0 {
				return ast.Instrument{}, diag.New(diag.Value, keyTok.Line, keyTok.Column, "decay must be >= 0, got %v", val)
			}
			adsr.Decay = val
			sawDecay = true
		case "sustain":
			if val < 0 || val > 1 {
				return ast.Instrument{}, diag.New(diag.Value, keyTok.Line, keyTok.Column, "sustain must be in [0,1], got %v", val)
			}
			adsr.Sustain = val
			sawSustain = true
		case "release":
			if val < 0 {
				return ast.Instrument{}, diag.New(diag.Value, keyTok.Line, keyTok.Column, "release must be >= 0, got %v", val)
			}
			adsr.Release = val
			sawRelease = true
		}
	}
	// Any identifier immediately following that isn't a recognized param
	// key but looks like an attempted one (next token is '=') is an
	// unknown-parameter error rather than silently ending the directive.
	if p.cur().Kind == lexer.Ident && p.toks[min(p.pos+1, len(p.toks)-1)].Kind == lexer.Equals {
		badTok := p.cur()
		return ast.Instrument{}, diag.New(diag.Value, badTok.Line, badTok.Column, "unknown instrument parameter %q", badTok.Text)
	}
	if sawAttack || sawDecay || sawSustain || sawRelease {
		filled := ast.DefaultADSR()
		if sawAttack {
			filled.Attack = adsr.Attack
		}
		if sawDecay {
			filled.Decay = adsr.Decay
		}
		if sawSustain {
			filled.Sustain = adsr.Sustain
		}
		if sawRelease {
			filled.Release = adsr.Release
		}
		inst.ADSR = &filled
	}
	return inst, nil
}

func (p *Parser) parsePattern() (ast.Pattern, error) {
	start := p.cur()
	p.advance() // 'pattern'
	nameTok, err := p.expectPatternName("Expected pattern name after pattern")
	if err != nil {
		return ast.Pattern{}, err
	}
	if _, err := p.expectKind(lexer.Colon, "Expected ':' after pattern name"); err != nil {
		return ast.Pattern{}, err
	}
	body, err := p.parseSequenceItems()
	if err != nil {
		return ast.Pattern{}, err
	}
	return ast.Pattern{Name: nameTok.Text, Body: body, Line: start.Line, Column: start.Column}, nil
}

func (p *Parser) parseTrack() (ast.Track, error) {
	start := p.cur()
	p.advance() // 'track'
	nameTok, err := p.expectKind(lexer.Ident, "Expected track name after track")
	if err != nil {
		return ast.Track{}, err
	}
	instKw, err := p.expectKind(lexer.Keyword, "Expected inst after track name")
	if err != nil {
		return ast.Track{}, err
	}
	if strings.ToLower(instKw.Text) != "inst" {
		return ast.Track{}, diag.New(diag.Syntactic, instKw.Line, instKw.Column, "Expected inst after track name, got %q", instKw.Text)
	}
	if _, err := p.expectKind(lexer.Equals, "Expected '=' after inst"); err != nil {
		return ast.Track{}, err
	}
	instNameTok, err := p.expectKind(lexer.Ident, "Expected instrument name after inst=")
	if err != nil {
		return ast.Track{}, err
	}
	if _, err := p.expectKind(lexer.Colon, "Expected ':' after track header"); err != nil {
		return ast.Track{}, err
	}
	body, err := p.parseSequenceItems()
	if err != nil {
		return ast.Track{}, err
	}
	return ast.Track{
		Name: nameTok.Text, Instrument: instNameTok.Text, Body: body,
		Line: start.Line, Column: start.Column,
	}, nil
}

func (p *Parser) parseSequenceItems() ([]ast.Item, error) {
	var items []ast.Item
	for {
		for p.cur().Kind == lexer.Comma {
			p.advance()
		}
		if p.isSequenceTerminator() {
			return items, nil
		}
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (p *Parser) isSequenceTerminator() bool {
	tok := p.cur()
	if tok.Kind == lexer.EOF || tok.Kind == lexer.RBrace {
		return true
	}
	if tok.Kind == lexer.Keyword && topLevelKeywords[strings.ToLower(tok.Text)] {
		return true
	}
	return false
}

func (p *Parser) parseItem() (ast.Item, error) {
	tok := p.cur()
	switch {
	case tok.Kind == lexer.Keyword && strings.ToLower(tok.Text) == "r":
		p.advance()
		dur, err := p.parseDuration()
		if err != nil {
			return ast.Item{}, err
		}
		return ast.Item{Kind: ast.ItemRest, Duration: dur, Line: tok.Line, Column: tok.Column}, nil

	case tok.Kind == lexer.Keyword && strings.ToLower(tok.Text) == "use":
		p.advance()
		nameTok, err := p.expectPatternName("Expected pattern name after use")
		if err != nil {
			return ast.Item{}, err
		}
		reps := 1
		if p.cur().Kind == lexer.Repeat {
			repTok := p.advance()
			n, convErr := strconv.Atoi(repTok.Text[1:])
			if convErr != nil || n <= 0 {
				return ast.Item{}, diag.New(diag.Value, repTok.Line, repTok.Column, "invalid repeat count %q", repTok.Text)
			}
			reps = n
		}
		return ast.Item{Kind: ast.ItemPatternUse, PatternName: nameTok.Text, Repetitions: reps, Line: tok.Line, Column: tok.Column}, nil

	case tok.Kind == lexer.Note:
		notePitch, err := p.parsePitchToken()
		if err != nil {
			return ast.Item{}, err
		}
		dur, err := p.parseDuration()
		if err != nil {
			return ast.Item{}, err
		}
		vel, err := p.parseOptionalVelocity()
		if err != nil {
			return ast.Item{}, err
		}
		return ast.Item{Kind: ast.ItemNote, Pitches: []pitch.Pitch{notePitch}, Duration: dur, Velocity: vel, Line: tok.Line, Column: tok.Column}, nil

	case tok.Kind == lexer.Repeat:
		return p.parseRepeatBlock()

	case tok.Kind == lexer.LBracket:
		return p.parseChord()

	default:
		return ast.Item{}, p.errf(diag.Syntactic, "Expected note, rest, chord, repeat, or use, got %q", tok.Text)
	}
}

func (p *Parser) parseRepeatBlock() (ast.Item, error) {
	tok := p.advance() // repeat marker, e.g. "x2"
	count, err := strconv.Atoi(tok.Text[1:])
	if err != nil || count <= 0 {
		return ast.Item{}, diag.New(diag.Value, tok.Line, tok.Column, "invalid repeat count %q", tok.Text)
	}
	if _, err := p.expectKind(lexer.LBrace, "Expected '{' after repeat count"); err != nil {
		return ast.Item{}, err
	}
	body, err := p.parseSequenceItems()
	if err != nil {
		return ast.Item{}, err
	}
	if _, err := p.expectKind(lexer.RBrace, "Expected '}' to close repeat block"); err != nil {
		return ast.Item{}, err
	}
	return ast.Item{Kind: ast.ItemRepeatBlock, Count: count, Body: body, Line: tok.Line, Column: tok.Column}, nil
}

func (p *Parser) parseChord() (ast.Item, error) {
	open := p.advance() // '['
	var pitches []pitch.Pitch
	for p.cur().Kind == lexer.Note {
		pt, err := p.parsePitchToken()
		if err != nil {
			return ast.Item{}, err
		}
		pitches = append(pitches, pt)
	}
	if len(pitches) == 0 {
		return ast.Item{}, diag.New(diag.Syntactic, open.Line, open.Column, "Chord must contain at least one note")
	}
	if _, err := p.expectKind(lexer.RBracket, "Expected ']' to close chord"); err != nil {
		return ast.Item{}, err
	}
	dur, err := p.parseDuration()
	if err != nil {
		return ast.Item{}, err
	}
	vel, err := p.parseOptionalVelocity()
	if err != nil {
		return ast.Item{}, err
	}
	return ast.Item{Kind: ast.ItemChord, Pitches: pitches, Duration: dur, Velocity: vel, Line: open.Line, Column: open.Column}, nil
}

func (p *Parser) parsePitchToken() (pitch.Pitch, error) {
	tok := p.cur()
	pt, err := pitch.Parse(tok.Text)
	if err != nil {
		return pitch.Pitch{}, diag.New(diag.Value, tok.Line, tok.Column, "%s", err.Error())
	}
	p.advance()
	return pt, nil
}

func (p *Parser) parseDuration() (ast.Duration, error) {
	tok := p.cur()
	if tok.Kind != lexer.Duration {
		return ast.Duration{}, diag.New(diag.Syntactic, tok.Line, tok.Column, "Expected duration (n/d), got %q", tok.Text)
	}
	p.advance()
	slash := strings.IndexByte(tok.Text, '/')
	n, errN := strconv.Atoi(tok.Text[:slash])
	d, errD := strconv.Atoi(tok.Text[slash+1:])
	if errN != nil || errD != nil {
		return ast.Duration{}, diag.New(diag.Syntactic, tok.Line, tok.Column, "Malformed duration %q", tok.Text)
	}
	if n <= 0 || d <= 0 {
		return ast.Duration{}, diag.New(diag.Value, tok.Line, tok.Column, "duration numerator and denominator must be positive, got %s", tok.Text)
	}
	return ast.Duration{Num: n, Den: d}, nil
}

func (p *Parser) parseOptionalVelocity() (*float64, error) {
	if p.cur().Kind != lexer.Ident || !strings.EqualFold(p.cur().Text, "vel") {
		return nil, nil
	}
	velTok := p.advance()
	if _, err := p.expectKind(lexer.Equals, "Expected '=' after vel"); err != nil {
		return nil, err
	}
	v, err := p.expectNumber("Expected number after vel=")
	if err != nil {
		return nil, err
	}
	if v < 0 || v > 1 {
		return nil, diag.New(diag.Value, velTok.Line, velTok.Column, "velocity must be in [0,1], got %v", v)
	}
	return &v, nil
}

func (p *Parser) expectKind(k lexer.Kind, what string) (lexer.Token, error) {
	if p.cur().Kind != k {
		return lexer.Token{}, p.errf(diag.Syntactic, "%s", what)
	}
	return p.advance(), nil
}

// expectPatternName accepts an identifier or the rest keyword `r` as a
// pattern name, so `pattern r: ...` and `use r` parse.
func (p *Parser) expectPatternName(what string) (lexer.Token, error) {
	tok := p.cur()
	if tok.Kind == lexer.Keyword && strings.ToLower(tok.Text) == "r" {
		return p.advance(), nil
	}
	return p.expectKind(lexer.Ident, what)
}

func (p *Parser) expectInteger(what string) (int, error) {
	tok := p.cur()
	if tok.Kind != lexer.Integer {
		return 0, p.errf(diag.Syntactic, "%s", what)
	}
	p.advance()
	v, err := strconv.Atoi(tok.Text)
	if err != nil {
		return 0, diag.New(diag.Syntactic, tok.Line, tok.Column, "Malformed integer %q", tok.Text)
	}
	return v, nil
}

func (p *Parser) expectNumber(what string) (float64, error) {
	tok := p.cur()
	if tok.Kind != lexer.Integer && tok.Kind != lexer.Decimal {
		return 0, p.errf(diag.Syntactic, "%s", what)
	}
	p.advance()
	v, err := strconv.ParseFloat(tok.Text, 64)
	if err != nil {
		return 0, diag.New(diag.Syntactic, tok.Line, tok.Column, "Malformed number %q", tok.Text)
	}
	return v, nil
}

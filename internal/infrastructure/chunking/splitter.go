package chunking

// DefaultSeparators go from paragraph down to word. Below the last separator
// text is cut per character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Splitter cuts text into spans of at most ChunkSize runes. Consecutive spans
// share at most Overlap runes and together cover the whole text.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

// Split returns the chunk spans of text in rune offsets.
func (s *Splitter) Split(text string) []Span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.ChunkSize {
		return []Span{{Start: 0, End: len(runes)}}
	}

	pieces := s.pieces(runes, Span{Start: 0, End: len(runes)}, 0)
	return s.merge(pieces)
}

// pieces breaks span into atoms no longer than ChunkSize, trying separators
// in order. Each separator stays attached to the text before it.
func (s *Splitter) pieces(runes []rune, span Span, level int) []Span {
	if span.Len() <= s.ChunkSize {
		return []Span{span}
	}
	if level >= len(s.Separators) {
		out := make([]Span, 0, span.Len()/s.ChunkSize+1)
		for start := span.Start; start < span.End; start += s.ChunkSize {
			out = append(out, Span{Start: start, End: min(start+s.ChunkSize, span.End)})
		}
		return out
	}

	parts := splitAfter(runes, span, []rune(s.Separators[level]))
	if len(parts) == 1 {
		return s.pieces(runes, span, level+1)
	}
	out := make([]Span, 0, len(parts))
	for _, part := range parts {
		out = append(out, s.pieces(runes, part, level+1)...)
	}
	return out
}

// merge packs atoms greedily into chunks. Each new chunk restarts at the
// trailing atoms of the previous one that fit in the overlap window.
func (s *Splitter) merge(atoms []Span) []Span {
	var out []Span
	first := 0
	for first < len(atoms) {
		last := first
		size := atoms[first].Len()
		for last+1 < len(atoms) && size+atoms[last+1].Len() <= s.ChunkSize {
			last++
			size += atoms[last].Len()
		}
		out = append(out, Span{Start: atoms[first].Start, End: atoms[last].End})
		if last == len(atoms)-1 {
			break
		}

		next := last + 1
		carried := 0
		for k := last; k > first; k-- {
			l := atoms[k].Len()
			if carried+l > s.Overlap || carried+l+atoms[last+1].Len() > s.ChunkSize {
				break
			}
			carried += l
			next = k
		}
		first = next
	}
	return out
}

func splitAfter(runes []rune, span Span, sep []rune) []Span {
	var out []Span
	start := span.Start
	for i := span.Start; i+len(sep) <= span.End; {
		if hasPrefixAt(runes, i, sep) {
			end := i + len(sep)
			out = append(out, Span{Start: start, End: end})
			start = end
			i = end
			continue
		}
		i++
	}
	if start < span.End {
		out = append(out, Span{Start: start, End: span.End})
	}
	return out
}

func hasPrefixAt(runes []rune, i int, prefix []rune) bool {
	for j, r := range prefix {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// Reconstruct joins spans of text back together, dropping the overlap each
// span shares with the previous one.
func Reconstruct(text string, spans []Span) string {
	runes := []rune(text)
	out := make([]rune, 0, len(runes))
	covered := 0
	for _, sp := range spans {
		from := max(sp.Start, covered)
		if from < sp.End {
			out = append(out, runes[from:sp.End]...)
			covered = sp.End
		}
	}
	return string(out)
}

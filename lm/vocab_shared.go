package lm

import "sync"

// SharedVocabulary ergaenzt das Vokabular eines Modells um Woerter, die das
// Modell nicht kennt. Neue Woerter bekommen IDs ab Bound und werden beim
// Bewerten wie <unk> behandelt. Sicher fuer parallele Nutzung.
type SharedVocabulary struct {
	base *Vocabulary

	mu    sync.RWMutex
	extra map[string]WordIndex
	words []string
}

// NewSharedVocabulary legt eine leere Erweiterung von base an
func NewSharedVocabulary(base *Vocabulary) *SharedVocabulary {
	return &SharedVocabulary{base: base, extra: make(map[string]WordIndex)}
}

// Lookup gibt die ID von word zurueck, ohne etwas anzulegen
func (s *SharedVocabulary) Lookup(word string) (WordIndex, bool) {
	if id, ok := s.base.lookup(hashWord(word)); ok {
		return id, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.extra[word]
	return id, ok
}

// Index gibt die ID von word zurueck und legt unbekannte Woerter an
func (s *SharedVocabulary) Index(word string) WordIndex {
	if id, ok := s.Lookup(word); ok {
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.extra[word]; ok {
		return id
	}
	id := s.base.Bound() + WordIndex(len(s.words))
	s.extra[word] = id
	s.words = append(s.words, word)
	return id
}

// Word gibt ein angelegtes Wort zurueck. Woerter des Modells sind hier nicht bekannt.
func (s *SharedVocabulary) Word(id WordIndex) (string, bool) {
	if id < s.base.Bound() {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := int(id - s.base.Bound())
	if i >= len(s.words) {
		return "", false
	}
	return s.words[i], true
}

// Added gibt die Anzahl angelegter Woerter zurueck
func (s *SharedVocabulary) Added() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.words)
}

// Base gibt das Vokabular des Modells zurueck
func (s *SharedVocabulary) Base() *Vocabulary {
	return s.base
}

package services

import "math/rand"

// Alphabet is the letter pool for a game. Letters are never reused within
// a session; when the pool is exhausted the game ends early.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// defaultCategories supplies the random top-up applied when the category
// deadline elapses with fewer than the minimum chosen.
var defaultCategories = map[string][]string{
	"en": {
		"Name", "Animal", "Color", "City", "Country", "Food",
		"Profession", "Brand", "Movie", "Sport", "Fruit", "Thing",
	},
	"es": {
		"Nombre", "Animal", "Color", "Ciudad", "País", "Comida",
		"Profesión", "Marca", "Película", "Deporte", "Fruta", "Cosa",
	},
	"pt": {
		"Nome", "Animal", "Cor", "Cidade", "País", "Comida",
		"Profissão", "Marca", "Filme", "Esporte", "Fruta", "Objeto",
	},
}

// categoryPool returns the default category list for a language,
// falling back to English.
func categoryPool(language string) []string {
	if pool, ok := defaultCategories[language]; ok {
		return pool
	}
	return defaultCategories["en"]
}

// shuffledPool returns a shuffled copy of the language's default pool
func shuffledPool(language string) []string {
	pool := categoryPool(language)
	out := make([]string, len(pool))
	copy(out, pool)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// unusedLetters returns the letters not yet played this game
func unusedLetters(used []string) []string {
	taken := make(map[string]bool, len(used))
	for _, l := range used {
		taken[l] = true
	}
	var free []string
	for _, r := range Alphabet {
		if l := string(r); !taken[l] {
			free = append(free, l)
		}
	}
	return free
}

// randomUnusedLetter picks a random letter not yet played, or "" when the
// alphabet is exhausted
func randomUnusedLetter(used []string) string {
	free := unusedLetters(used)
	if len(free) == 0 {
		return ""
	}
	return free[rand.Intn(len(free))]
}

package session

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Word lists for human-shareable session ids. The id space is small
// (15 x 15 x 1000); the generator does not check the store for collisions,
// the create path's unique insert catches the rare reuse instead.
var adjectives = []string{
	"happy", "clever", "bright", "swift", "brave",
	"calm", "wise", "kind", "bold", "cool",
	"epic", "keen", "witty", "zesty", "vivid",
}

var animals = []string{
	"cat", "dog", "fox", "owl", "bear",
	"wolf", "hawk", "lion", "panda", "eagle",
	"tiger", "dragon", "phoenix", "lynx", "falcon",
}

// GenerateSessionID returns a fresh adjective-animal-number id.
func GenerateSessionID() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	animal := animals[rand.Intn(len(animals))]
	number := rand.Intn(1000)

	return fmt.Sprintf("%s-%s-%d", adjective, animal, number)
}

// ValidSessionID structurally checks an externally supplied id without
// consulting the store: three hyphen-separated parts, the first two drawn
// from the known word lists, the third an integer.
func ValidSessionID(sessionID string) bool {
	parts := strings.Split(sessionID, "-")
	if len(parts) != 3 {
		return false
	}

	if !containsWord(adjectives, parts[0]) || !containsWord(animals, parts[1]) {
		return false
	}

	_, err := strconv.Atoi(parts[2])
	return err == nil
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}

package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/xaenox/concierge-bot/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed activities.yaml
var defaultActivities []byte

// ErrNoMediaBase is returned when a relative image cannot be resolved
// because no public base address is configured.
var ErrNoMediaBase = errors.New("catalog: public base url is not configured")

// Catalog is the static activity table. Declaration order is preserved
// and drives the order in which cards are emitted.
type Catalog struct {
	activities []models.Activity
	keys       [][]string
	index      map[string]int
}

// New validates the activity list and builds the lookup keys.
func New(activities []models.Activity) (*Catalog, error) {
	c := &Catalog{
		activities: make([]models.Activity, 0, len(activities)),
		keys:       make([][]string, 0, len(activities)),
		index:      make(map[string]int, len(activities)),
	}

	for i, a := range activities {
		key := tokenize(a.Name)
		if len(key) == 0 {
			return nil, fmt.Errorf("activity %d: name is empty", i)
		}
		norm := strings.Join(key, " ")
		if prev, exists := c.index[norm]; exists {
			return nil, fmt.Errorf("activity %q collides with %q after normalization", a.Name, c.activities[prev].Name)
		}
		c.index[norm] = len(c.activities)
		c.activities = append(c.activities, a)
		c.keys = append(c.keys, key)
	}

	return c, nil
}

// Default returns the embedded activity table.
func Default() (*Catalog, error) {
	return parse(defaultActivities)
}

// Load reads an activity table from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var activities []models.Activity
	if err := yaml.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("error parsing catalog: %w", err)
	}
	return New(activities)
}

// Activities returns the table in declaration order.
func (c *Catalog) Activities() []models.Activity {
	out := make([]models.Activity, len(c.activities))
	copy(out, c.activities)
	return out
}

// Lookup finds an activity by name, ignoring case, punctuation and
// the and/& spelling.
func (c *Catalog) Lookup(name string) (models.Activity, bool) {
	i, ok := c.index[Normalize(name)]
	if !ok {
		return models.Activity{}, false
	}
	return c.activities[i], true
}

// Mentioned returns every activity whose name appears in text as a whole
// run of words. Results follow declaration order, each activity at most once.
func (c *Catalog) Mentioned(text string) []models.Activity {
	words := tokenize(text)
	var mentioned []models.Activity
	for i, key := range c.keys {
		if containsRun(words, key) {
			mentioned = append(mentioned, c.activities[i])
		}
	}
	return mentioned
}

// Caption formats the card text for an activity.
func Caption(a models.Activity) string {
	return fmt.Sprintf("*%s*\n%s\n\n🕒 *Time:* %s to %s", a.Name, a.Description, a.Start, a.End)
}

// MediaURL resolves the activity image to an absolute address.
func MediaURL(a models.Activity, base string) (string, error) {
	lower := strings.ToLower(a.Image)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return a.Image, nil
	}
	if base == "" {
		return "", ErrNoMediaBase
	}
	resolved, err := url.JoinPath(base, a.Image)
	if err != nil {
		return "", fmt.Errorf("error resolving media url for %q: %w", a.Name, err)
	}
	return resolved, nil
}

// IsWhatsApp reports whether addr is a WhatsApp channel address.
func IsWhatsApp(addr string) bool {
	return strings.HasPrefix(addr, "whatsapp:")
}

// BookingLink builds a wa.me deep link that pre-fills the booking command.
func BookingLink(botAddress, activityName string) string {
	number := strings.TrimPrefix(strings.TrimPrefix(botAddress, "whatsapp:"), "+")
	text := strings.ReplaceAll(url.QueryEscape("Book: "+activityName), "+", "%20")
	return fmt.Sprintf("https://wa.me/%s?text=%s", number, text)
}

package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// Keyword buckets for lightweight tag extraction from post bodies.
var tagKeywords = []struct {
	tag   string
	words []string
}{
	{"astrology", []string{"jyotish", "chart", "horoscope", "lagna", "nakshatra", "graha", "kundli", "dasha", "transit", "kundali"}},
	{"remedy", []string{"remedy", "upaya", "mantra", "puja", "worship", "fast", "daan"}},
	{"philosophy", []string{"dharma", "karma", "moksha", "bhakti", "vedas", "shastra", "gita", "vedanta"}},
	{"family", []string{"family", "parent", "mother", "father", "marriage", "spouse", "children"}},
	{"career", []string{"career", "job", "work", "promotion", "wealth", "money"}},
	{"health", []string{"health", "disease", "illness", "hospital", "medicine"}},
	{"education", []string{"study", "education", "learn", "class", "course"}},
	{"society", []string{"society", "culture", "tradition", "people"}},
}

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	quotePattern      = regexp.MustCompile("[\"'“”‘’]")
)

// emoji replacements applied before stripping the remainder.
var emojiReplacements = []struct{ from, to string }{
	{"\U0001F64F", "[namaste]"},
	{"\U0001F60A", ":)"},
	{"\U0001F602", ":D"},
	{"❤️", "<3"},
	{"\U0001F44D", "[thumbs up]"},
	{"\U0001F525", "[fire]"},
	{"✨", "*"},
	{"\U0001F4AF", "100"},
	{"\U0001F3AF", "[target]"},
	{"\U0001F31F", "[star]"},
	{"\U0001F60C", ":)"},
	{"\U0001F642", ":)"},
}

// Item pairs a timeline post with its resolved conversation, if any.
type Item struct {
	Post         *models.Post
	Conversation *models.Conversation
}

// cleanText normalizes a post body for rendering: newlines unified,
// trailing line whitespace removed, common emojis replaced and the rest
// stripped.
func cleanText(text string) string {
	if text == "" {
		return ""
	}

	out := strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out = strings.Join(lines, "\n")

	for _, r := range emojiReplacements {
		out = strings.ReplaceAll(out, r.from, r.to)
	}

	var b strings.Builder
	for _, r := range out {
		if (r >= 0x1F000 && r <= 0x1F9FF) || (r >= 0x2600 && r <= 0x26FF) || (r >= 0x2700 && r <= 0x27BF) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// smartTitle derives a section title from the first meaningful line of
// the post, shortened gracefully.
func smartTitle(text string) string {
	clean := func(t string) string {
		t = urlPattern.ReplaceAllString(t, " ")
		t = quotePattern.ReplaceAllString(t, " ")
		return strings.TrimSpace(whitespacePattern.ReplaceAllString(t, " "))
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if cleaned := clean(l); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	if len(lines) == 0 {
		return "Untitled"
	}

	first := lines[0]
	for _, l := range lines {
		if len(l) > 12 {
			first = l
			break
		}
	}
	if len(first) <= 90 {
		return first
	}

	cut := strings.TrimSpace(first[:87])
	if strings.HasSuffix(cut, ".") {
		return cut
	}
	return cut + "..."
}

// extractTags scores the keyword buckets against the text and returns up
// to four winning tags, highest score first.
func extractTags(text string) []string {
	lower := strings.ToLower(text)

	type scored struct {
		tag   string
		score int
	}
	var scores []scored
	for _, bucket := range tagKeywords {
		hits := 0
		for _, w := range bucket.words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, scored{bucket.tag, hits})
		}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if len(scores) > 4 {
		scores = scores[:4]
	}

	tags := make([]string, len(scores))
	for i, s := range scores {
		tags[i] = s.tag
	}
	return tags
}

// BuildAccountDocument renders an account's harvested posts and resolved
// conversations to a markdown document.
func BuildAccountDocument(username string, items []Item) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# @%s\n\n", username)
	fmt.Fprintf(&b, "%d posts harvested.\n\n", len(items))

	for i, item := range items {
		conv := item.Conversation

		text := item.Post.Text
		if conv != nil && conv.Root.Text != "" {
			text = conv.Root.Text
		}
		text = cleanText(text)

		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, smartTitle(text))
		if tags := extractTags(text); len(tags) > 0 {
			fmt.Fprintf(&b, "*%s*\n\n", strings.Join(tags, ", "))
		}
		writeBody(&b, text)

		if conv == nil {
			b.WriteString("\n")
			continue
		}

		for _, post := range conv.Thread {
			b.WriteString("\n---\n\n")
			writeBody(&b, cleanText(post.Text))
		}

		for _, reply := range conv.Replies {
			fmt.Fprintf(&b, "\n**@%s asked:**\n\n", reply.Post.Author)
			writeQuoted(&b, cleanText(reply.Post.Text))
			for _, resp := range reply.AuthorResponses {
				fmt.Fprintf(&b, "\n**@%s answered:**\n\n", resp.Author)
				writeBody(&b, cleanText(resp.Text))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeBody(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	b.WriteString(text)
	b.WriteString("\n")
}

func writeQuoted(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

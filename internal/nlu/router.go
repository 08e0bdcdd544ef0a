package nlu

import (
	"regexp"
	"strings"
)

type matchMode uint

const (
	// matchWord requires the keyword to sit on word boundaries.
	matchWord matchMode = iota
	// matchSubstring accepts the keyword anywhere, even inside a word.
	matchSubstring
)

type keyword struct {
	text string
	mode matchMode
}

type rule struct {
	command  Command
	keywords []keyword
	// filler words trimmed from both ends of the extracted argument
	filler map[string]struct{}
	noArg  bool
}

func words(ws ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		set[w] = struct{}{}
	}
	return set
}

func kw(text string) keyword  { return keyword{text: text, mode: matchWord} }
func sub(text string) keyword { return keyword{text: text, mode: matchSubstring} }

// rules are evaluated top to bottom; the first rule with a matching keyword
// wins. Inside a rule keywords are tried in order as well.
var rules = []rule{
	{
		command:  Weather,
		keywords: []keyword{sub("weather")},
		filler: words("in", "for", "at", "of", "the", "like", "today", "tomorrow", "now", "forecast",
			"is", "it", "what's", "whats", "what", "how's", "hows", "how", "please", "current",
			"tell", "me", "about", "check", "get", "show", "city"),
	},
	{
		command:  Knowledge,
		keywords: []keyword{kw("tell me about"), kw("wikipedia"), kw("wiki"), kw("who is"), kw("who was")},
		filler:   words("about", "for", "on", "search", "me", "tell", "please", "up", "look", "in", "from"),
	},
	{
		command:  Music,
		keywords: []keyword{kw("play")},
		filler:   words("the", "song", "music", "track", "me", "some", "a", "on", "spotify", "please", "for"),
	},
	{
		command:  Search,
		keywords: []keyword{kw("search"), kw("google"), kw("look up")},
		filler:   words("for", "on", "google", "the", "web", "about", "up", "please", "internet", "online", "search"),
	},
	{
		command:  Time,
		keywords: []keyword{kw("time")},
		noArg:    true,
	},
	{
		command:  Date,
		keywords: []keyword{kw("date"), kw("what day"), kw("which day")},
		noArg:    true,
	},
	{
		command:  Greeting,
		keywords: []keyword{kw("hello"), kw("hi"), kw("hey")},
		noArg:    true,
	},
}

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}'\s-]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases input, drops punctuation other than apostrophes and
// hyphens, and collapses whitespace.
func Normalize(input string) string {
	s := strings.ToLower(strings.ReplaceAll(input, "’", "'"))
	s = punctRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Route maps an utterance to exactly one Intent. It has no failure mode:
// anything that matches no rule is Unknown.
func Route(input string) Intent {
	utterance := Normalize(input)
	intent := Intent{Command: Unknown, Utterance: utterance}
	if utterance == "" {
		return intent
	}

	for _, r := range rules {
		for _, k := range r.keywords {
			start, end, ok := find(utterance, k)
			if !ok {
				continue
			}

			intent.Command = r.command
			intent.Keyword = k.text
			if !r.noArg {
				intent.Arg = extractArg(utterance, start, end, r.filler)
			}
			return intent
		}
	}

	return intent
}

func find(utterance string, k keyword) (int, int, bool) {
	switch k.mode {
	case matchSubstring:
		idx := strings.Index(utterance, k.text)
		if idx < 0 {
			return 0, 0, false
		}
		// widen to the whole word ("heavyweather", "weather's", "weatherman")
		start, end := idx, idx+len(k.text)
		for start > 0 && utterance[start-1] != ' ' {
			start--
		}
		for end < len(utterance) && utterance[end] != ' ' {
			end++
		}
		return start, end, true
	default:
		padded := " " + utterance + " "
		idx := strings.Index(padded, " "+k.text+" ")
		if idx < 0 {
			return 0, 0, false
		}
		return idx, idx + len(k.text), true
	}
}

func extractArg(utterance string, start, end int, filler map[string]struct{}) string {
	if arg := trimFiller(utterance[end:], filler); arg != "" {
		return arg
	}
	return trimFiller(utterance[:start], filler)
}

func trimFiller(s string, filler map[string]struct{}) string {
	fields := strings.Fields(s)
	for len(fields) > 0 {
		if _, ok := filler[fields[0]]; !ok {
			break
		}
		fields = fields[1:]
	}
	for len(fields) > 0 {
		if _, ok := filler[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

package intent

import (
	"regexp"
	"strings"
)

var (
	historyPattern     = regexp.MustCompile(`^/?(?:show (?:my |the )?(?:chat )?history|history|my history|what did i (?:just )?ask)(?: please)?[\s!.?]*$`)
	memoryDebugPattern = regexp.MustCompile(`^/?(?:memory|show (?:my )?memory|what do you (?:know|remember) about me)(?: please)?[\s!.?]*$`)
	memoryResetPattern = regexp.MustCompile(`^/?(?:forget me|forget everything|forget about me|clear (?:my )?memory|reset (?:my )?memory)(?: please)?[\s!.?]*$`)
	rememberPattern    = regexp.MustCompile(`(?i)^(?:please\s+)?(?:remember|yaad rakho|yaad rakhna)\b[\s,:]*(?:that\s+)?(.*)$`)
	factPattern        = regexp.MustCompile(`(?i)^(?:my\s+)?(.+?)\s+(?:is|are|=|hai)\s+(.+)$`)
)

// matchCommand recognises commands at the start of the message. Facts keep
// the user's original casing.
func matchCommand(m Message) (Intent, bool) {
	s := m.Folded
	switch {
	case historyPattern.MatchString(s):
		return Intent{Kind: KindCommand, Command: CommandHistory}, true
	case memoryDebugPattern.MatchString(s):
		return Intent{Kind: KindCommand, Command: CommandMemoryDebug}, true
	case memoryResetPattern.MatchString(s):
		return Intent{Kind: KindCommand, Command: CommandMemoryReset}, true
	}
	if sub := rememberPattern.FindStringSubmatch(m.Text); sub != nil {
		body := strings.Trim(sub[1], " .!")
		if body == "" {
			return Intent{}, false
		}
		return Intent{Kind: KindCommand, Command: CommandRemember, Fact: parseFact(body)}, true
	}
	return Intent{}, false
}

// parseFact splits "my city is Chennai" into key "city" and value
// "Chennai". Anything without an "is" clause is stored under "note".
func parseFact(body string) Fact {
	if m := factPattern.FindStringSubmatch(body); m != nil {
		key := strings.ToLower(strings.Join(strings.Fields(m[1]), "_"))
		if key != "" && len(key) <= 32 {
			return Fact{Key: key, Value: strings.TrimSpace(m[2])}
		}
	}
	return Fact{Key: "note", Value: body}
}

// Small-talk patterns match the whole message, so a greeting followed by a
// real question falls through to the later rules.
var smallTalkPatterns = []struct {
	class   SmallTalk
	pattern *regexp.Regexp
}{
	{Greeting, regexp.MustCompile(`^(?:hi+|hello+|hey+|hlo|helo|namaste|namaskar|good (?:morning|afternoon|evening))(?:\s+(?:there|team|all|ji|sir|madam))?[\s!.,]*$`)},
	{Farewell, regexp.MustCompile(`^(?:bye+|goodbye|good night|see you|see ya|talk later|alvida)(?:\s+(?:then|now|ji))?[\s!.,]*$`)},
	{Thanks, regexp.MustCompile(`^(?:thanks?|thank you|thank u|thanks a lot|many thanks|dhanyavaad|dhanyawad|shukriya)(?:\s+(?:so much|a lot|ji|again))?[\s!.,]*$`)},
	{Ack, regexp.MustCompile(`^(?:ok+|okay|alright|cool|fine|got it|great|theek hai|thik hai|accha|acha)[\s!.,]*$`)},
	{Help, regexp.MustCompile(`^(?:help|help me|can you help(?: me)?|i need help|madad)[\s!.,?]*$`)},
}

// shortTokens covers very short inputs that the patterns do not.
var shortTokens = map[string]SmallTalk{
	"hi":  Greeting,
	"hii": Greeting,
	"hey": Greeting,
	"yo":  Greeting,
	"gm":  Greeting,
	"ty":  Thanks,
	"thx": Thanks,
	"tq":  Thanks,
	"k":   Ack,
	"kk":  Ack,
	"ok":  Ack,
	"gn":  Farewell,
	"bye": Farewell,
	"cya": Farewell,
}

func matchSmallTalk(m Message) (Intent, bool) {
	s := m.Folded
	if class, ok := shortTokens[strings.Trim(s, " !.,?")]; ok {
		return Intent{Kind: KindSmallTalk, SmallTalk: class}, true
	}
	for _, p := range smallTalkPatterns {
		if p.pattern.MatchString(s) {
			return Intent{Kind: KindSmallTalk, SmallTalk: p.class}, true
		}
	}
	return Intent{}, false
}

// contactPattern fires anywhere in the message. "call" only counts in
// phrases; "support" is handled by supportPattern.
var contactPattern = regexp.MustCompile(`\b(?:contact|phone|telephone|mobile number|email|e-mail|mail id|address|helpline|toll[ -]free|whatsapp|branch|branches|office|customer (?:care|support|service)|support (?:team|number|email|contact|centre|center)|call (?:you|centre|center)|reach you|sampark)\b`)

// supportPattern accepts "support" when the user is asking for it: alone,
// or after a seeking verb. "does it support hoops" stays a product question.
var supportPattern = regexp.MustCompile(`^(?:customer\s+|tech(?:nical)?\s+)?support(?:\s+(?:please|pls|chahiye))?[\s!.?]*$|\b(?:need|want|get|reach|contact|call|talk to|speak to|speak with|connect (?:me )?(?:to|with))\s+(?:(?:the|your|some|a|customer|tech(?:nical)?)\s+){0,2}support\b|\bsupport\s+(?:chahiye|please|pls)\b`)

func matchContact(m Message) (Intent, bool) {
	if contactPattern.MatchString(m.Folded) || supportPattern.MatchString(m.Folded) {
		return Intent{Kind: KindContact}, true
	}
	return Intent{}, false
}

// categoryMatcher picks the category with the most whole-word keyword hits;
// ties go to the earlier category.
func categoryMatcher(categories []Category) func(Message) (Intent, bool) {
	type compiled struct {
		cat      *Category
		patterns []*regexp.Regexp
	}
	var cs []compiled
	for i := range categories {
		c := compiled{cat: &categories[i]}
		for _, kw := range categories[i].Keywords {
			c.patterns = append(c.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
		}
		cs = append(cs, c)
	}

	return func(m Message) (Intent, bool) {
		var best *Category
		bestHits := 0
		for _, c := range cs {
			hits := 0
			for _, p := range c.patterns {
				if p.MatchString(m.Folded) {
					hits++
				}
			}
			if hits > bestHits {
				best, bestHits = c.cat, hits
			}
		}
		if best == nil {
			return Intent{}, false
		}
		return Intent{Kind: KindCategory, Category: best}, true
	}
}

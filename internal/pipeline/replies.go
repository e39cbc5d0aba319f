package pipeline

import (
	"fmt"
	"strings"

	"github.com/kalambet/supportqa/internal/contact"
	"github.com/kalambet/supportqa/internal/intent"
	"github.com/kalambet/supportqa/internal/storage"
	"github.com/kalambet/supportqa/internal/textnorm"
)

// phrase holds the English and Hinglish forms of a deterministic reply.
type phrase struct {
	en, hi string
}

func (p phrase) in(mode textnorm.Mode) string {
	if mode == textnorm.ModeHinglish && p.hi != "" {
		return p.hi
	}
	return p.en
}

var (
	replyFirstGreeting = phrase{"How can I help you today?", "Bataiye, main aapki kya madad kar sakta hoon?"}
	replyGreeting      = phrase{"Hello again! What would you like to know about our machines?", "Namaste! Machines ke baare mein kya jaanna chahenge?"}
	replyFarewell      = phrase{"Goodbye! Happy sewing.", "Dhanyavaad! Happy sewing."}
	replyThanks        = phrase{"You're welcome! Anything else I can help with?", "Koi baat nahi! Aur kuch madad chahiye?"}
	replyAck           = phrase{"Great. Let me know if you have another question.", "Theek hai. Aur koi sawaal ho to poochiye."}
	replyHelp          = phrase{"I can answer questions about our sewing, embroidery and overlock machines, their features, accessories, warranty and service. Try asking about a model number.", "Main sewing, embroidery aur overlock machines, unke features, accessories, warranty aur service ke baare mein bata sakta hoon. Model number ke saath poochiye."}

	replyBeSpecific = phrase{"I couldn't find that in our product information. Could you be more specific, for example by including the model number?", "Yeh jaankari mujhe nahi mili. Thoda detail mein poochiye, jaise model number ke saath?"}
	replyKBDown     = phrase{"Our product knowledge base is unavailable right now. Please try again later.", "Abhi product knowledge base available nahi hai. Thodi der baad try kijiye."}
	replyRetryLater = phrase{"Sorry, I couldn't look that up just now. Please try again in a moment.", "Maaf kijiye, abhi yeh dhoondh nahi paaya. Thodi der mein phir try kijiye."}
	replyBusy       = phrase{"Sorry, our assistant is busy right now. Please try again in a minute.", "Maaf kijiye, abhi assistant busy hai. Ek minute baad try kijiye."}
	replyQuota      = phrase{"Sorry, we've reached our answer limit for the moment. Please try again later or contact our support team.", "Maaf kijiye, abhi answer limit poori ho gayi hai. Baad mein try kijiye ya support team se sampark kijiye."}
	replyFailed     = phrase{"Sorry, something went wrong while preparing your answer. Please try again.", "Maaf kijiye, jawab banate waqt gadbad ho gayi. Phir se try kijiye."}

	replyNoHistory   = phrase{"I don't have any earlier messages from this chat.", "Is chat ke pehle ke messages mere paas nahi hain."}
	replyNoFacts     = phrase{"I don't have anything saved about you yet.", "Aapke baare mein abhi kuch save nahi hai."}
	replyForgot      = phrase{"Done. I've forgotten what you told me.", "Ho gaya. Aapki saved jaankari hata di gayi hai."}
	replyMemoryError = phrase{"Sorry, I couldn't update your saved details right now.", "Maaf kijiye, abhi aapki details update nahi ho payi."}
)

func smallTalkReply(class intent.SmallTalk, mode textnorm.Mode, firstTurn bool) string {
	switch class {
	case intent.Greeting:
		if firstTurn {
			return replyFirstGreeting.in(mode)
		}
		return replyGreeting.in(mode)
	case intent.Farewell:
		return replyFarewell.in(mode)
	case intent.Thanks:
		return replyThanks.in(mode)
	case intent.Ack:
		return replyAck.in(mode)
	default:
		return replyHelp.in(mode)
	}
}

func contactReply(info contact.Info, mode textnorm.Mode) string {
	var sb strings.Builder
	if mode == textnorm.ModeHinglish {
		sb.WriteString("Aap humse yahan sampark kar sakte hain:")
	} else {
		sb.WriteString("You can reach our support team here:")
	}
	if info.Phone != "" {
		fmt.Fprintf(&sb, "\nPhone: %s", info.Phone)
	}
	if info.Email != "" {
		fmt.Fprintf(&sb, "\nEmail: %s", info.Email)
	}
	if info.Address != "" {
		fmt.Fprintf(&sb, "\nAddress: %s", info.Address)
	}
	return sb.String()
}

// noMatchReply asks for detail when no model was named; when a model was
// named but nothing matched, it points to support instead.
func noMatchReply(entities []string, info contact.Info, mode textnorm.Mode) string {
	if len(entities) == 0 {
		return replyBeSpecific.in(mode)
	}
	var lead string
	if mode == textnorm.ModeHinglish {
		lead = fmt.Sprintf("%s ke baare mein mujhe jaankari nahi mili.", strings.ToUpper(strings.Join(entities, ", ")))
	} else {
		lead = fmt.Sprintf("I couldn't find details about %s.", strings.ToUpper(strings.Join(entities, ", ")))
	}
	return lead + " " + contactReply(info, mode)
}

func rememberedReply(f intent.Fact, mode textnorm.Mode) string {
	if f.Key == "note" {
		if mode == textnorm.ModeHinglish {
			return "Theek hai, yaad rakhunga."
		}
		return "Got it, I'll remember that."
	}
	key := strings.ReplaceAll(f.Key, "_", " ")
	if mode == textnorm.ModeHinglish {
		return fmt.Sprintf("Theek hai, yaad rakhunga ki aapka %s %s hai.", key, f.Value)
	}
	return fmt.Sprintf("Got it, I'll remember your %s is %s.", key, f.Value)
}

func factsReply(facts []storage.Fact, mode textnorm.Mode) string {
	if len(facts) == 0 {
		return replyNoFacts.in(mode)
	}
	var sb strings.Builder
	if mode == textnorm.ModeHinglish {
		sb.WriteString("Aapke baare mein mujhe yeh yaad hai:")
	} else {
		sb.WriteString("Here's what I remember about you:")
	}
	for _, f := range facts {
		fmt.Fprintf(&sb, "\n- %s: %s", strings.ReplaceAll(f.Key, "_", " "), f.Value)
	}
	return sb.String()
}

func historyReply(questions []string, mode textnorm.Mode) string {
	if len(questions) == 0 {
		return replyNoHistory.in(mode)
	}
	var sb strings.Builder
	if mode == textnorm.ModeHinglish {
		sb.WriteString("Aapne haal hi mein yeh poocha tha:")
	} else {
		sb.WriteString("Here's what you asked recently:")
	}
	for i, q := range questions {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, q)
	}
	return sb.String()
}

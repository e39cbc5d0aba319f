// Package intent classifies a support message into exactly one intent by
// walking an ordered rule list, first match wins.
package intent

// Kind is the class of a message.
type Kind string

const (
	KindCommand   Kind = "command"
	KindSmallTalk Kind = "smalltalk"
	KindContact   Kind = "contact"
	KindCategory  Kind = "category"
	KindKnowledge Kind = "knowledge"
)

// ShortCircuits reports whether the intent is answered without retrieval.
func (k Kind) ShortCircuits() bool {
	return k == KindCommand || k == KindSmallTalk || k == KindContact
}

// Command names an explicit memory or history command.
type Command string

const (
	CommandHistory     Command = "history"
	CommandMemoryDebug Command = "memory_debug"
	CommandMemoryReset Command = "memory_reset"
	CommandRemember    Command = "remember"
)

// SmallTalk names a small-talk class.
type SmallTalk string

const (
	Greeting SmallTalk = "greeting"
	Farewell SmallTalk = "farewell"
	Thanks   SmallTalk = "thanks"
	Ack      SmallTalk = "ack"
	Help     SmallTalk = "help"
)

// Fact is the key/value pair carried by a "remember" command.
type Fact struct {
	Key   string
	Value string
}

// Category is a product area used to bias retrieval.
type Category struct {
	Name     string
	Keywords []string
	Hint     string
}

// Intent is the classification of one message. Only the fields relevant to
// Kind are set.
type Intent struct {
	Kind      Kind
	Rule      string
	Command   Command
	Fact      Fact
	SmallTalk SmallTalk
	Category  *Category
}

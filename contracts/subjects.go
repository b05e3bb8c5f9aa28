package contracts

import "strings"

// Kiosk subject namespace. Events are published as kiosk.<source>.<event>,
// agent requests as kiosk.agent.<agent>.<command>. The client preserves
// these conventions verbatim and never interprets subject contents.
const (
	SubjectPrefix = "kiosk"
	AgentPrefix   = "kiosk.agent"
)

// EventSubject builds the subject for an event from a given source,
// e.g. EventSubject("vision", "person_detected").
func EventSubject(source, event string) string {
	return SubjectPrefix + "." + source + "." + event
}

// AgentSubject builds the subject for an agent command,
// e.g. AgentSubject("menu", "search").
func AgentSubject(agent, command string) string {
	return AgentPrefix + "." + agent + "." + command
}

// ValidateSubject checks a publish-side subject: non-empty dot-delimited
// tokens with no wildcards. Wildcards are only meaningful when subscribing.
func ValidateSubject(subject string) error {
	if subject == "" {
		return &SubjectError{Subject: subject, Reason: "empty subject"}
	}
	for _, tok := range strings.Split(subject, ".") {
		switch tok {
		case "":
			return &SubjectError{Subject: subject, Reason: "empty token"}
		case "*", ">":
			return &SubjectError{Subject: subject, Reason: "wildcards are not allowed when publishing"}
		}
	}
	return nil
}

// ValidatePattern checks a subscribe-side subject pattern: non-empty
// dot-delimited tokens where "*" matches one token and ">" matches the
// remainder and must be the final token.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return &SubjectError{Subject: pattern, Reason: "empty pattern"}
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		switch {
		case tok == "":
			return &SubjectError{Subject: pattern, Reason: "empty token"}
		case tok == ">" && i != len(toks)-1:
			return &SubjectError{Subject: pattern, Reason: "'>' must be the final token"}
		}
	}
	return nil
}

// MatchSubject reports whether a concrete subject matches a subscription
// pattern under broker wildcard rules.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
